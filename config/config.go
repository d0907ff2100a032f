// Package config loads the server configuration from struct defaults,
// an optional YAML file and command line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	auth "github.com/goliatone/go-auth-server"
)

const delim = "."

// Config is the complete server configuration.
type Config struct {
	Server       Server             `koanf:"server" json:"server"`
	Persistence  Persistence        `koanf:"persistence" json:"persistence"`
	Auth         Auth               `koanf:"auth" json:"auth"`
	Lockout      auth.LockoutPolicy `koanf:"lockout" json:"lockout"`
	Password     Password           `koanf:"password" json:"password"`
	UserInfo     UserInfo           `koanf:"userinfo" json:"userinfo"`
	Registration Registration       `koanf:"registration" json:"registration"`
	Logging      Logging            `koanf:"logging" json:"logging"`
}

type Server struct {
	Addr            string        `koanf:"addr" json:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	Debug           bool          `koanf:"debug" json:"debug"`
}

type Persistence struct {
	Driver      string        `koanf:"driver" json:"driver"`
	DSN         string        `koanf:"dsn" json:"dsn"`
	Debug       bool          `koanf:"debug" json:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" json:"ping_timeout"`
	Migrate     bool          `koanf:"migrate" json:"migrate"`
}

type Auth struct {
	Issuer       string `koanf:"issuer" json:"issuer"`
	SigningKey   string `koanf:"signing_key" json:"signing_key"`
	ClientID     string `koanf:"client_id" json:"client_id"`
	ClientSecret string `koanf:"client_secret" json:"client_secret"`
	DisplayName  string `koanf:"display_name" json:"display_name"`
	ClientsRole  string `koanf:"clients_role" json:"clients_role"`
}

type Password struct {
	MinLength int `koanf:"min_length" json:"min_length"`
	MaxLength int `koanf:"max_length" json:"max_length"`
	HashCost  int `koanf:"hash_cost" json:"hash_cost"`
}

// Policy returns the password policy for the account store.
func (p Password) Policy() auth.PasswordPolicy {
	return auth.PasswordPolicy{MinLength: p.MinLength, MaxLength: p.MaxLength}
}

type UserInfo struct {
	CacheTTL     time.Duration `koanf:"cache_ttl" json:"cache_ttl"`
	CacheMaxSize int           `koanf:"cache_max_size" json:"cache_max_size"`
}

type Registration struct {
	DeterministicIDs      bool `koanf:"deterministic_ids" json:"deterministic_ids"`
	RequireConfirmedEmail bool `koanf:"require_confirmed_email" json:"require_confirmed_email"`
}

type Logging struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	pwd := auth.DefaultPasswordPolicy()
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Persistence: Persistence{
			Driver:      "sqlite",
			DSN:         "file:auth.db?cache=shared",
			PingTimeout: 5 * time.Second,
			Migrate:     true,
		},
		Auth: Auth{
			Issuer:      "go-auth-server",
			ClientID:    "web-client",
			DisplayName: "Web client",
		},
		Lockout: auth.DefaultLockoutPolicy(),
		Password: Password{
			MinLength: pwd.MinLength,
			MaxLength: pwd.MaxLength,
			HashCost:  12,
		},
		UserInfo: UserInfo{
			CacheTTL:     auth.DefaultUserInfoTTL,
			CacheMaxSize: 10000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Flags registers the command line overrides on fs. Flag names are the
// koanf keys.
func Flags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a YAML configuration file")
	fs.String("server.addr", d.Server.Addr, "listen address")
	fs.Bool("server.debug", d.Server.Debug, "dump request payloads")
	fs.String("persistence.driver", d.Persistence.Driver, "database driver: sqlite or postgres")
	fs.String("persistence.dsn", d.Persistence.DSN, "database connection string")
	fs.Bool("persistence.debug", d.Persistence.Debug, "log SQL queries")
	fs.String("auth.issuer", d.Auth.Issuer, "token issuer")
	fs.String("auth.signing_key", "", "HS256 signing key, at least 32 bytes")
	fs.String("auth.client_id", d.Auth.ClientID, "client bootstrapped at startup")
	fs.String("auth.client_secret", "", "secret of the bootstrapped client")
	fs.String("logging.level", d.Logging.Level, "log level: debug, info, warn, error")
	fs.String("logging.format", d.Logging.Format, "log format: text, json or pretty")
}

// Load builds the configuration. path may be empty, fs may be nil. Only
// flags that were set on the command line override earlier layers.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(delim)

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, delim, k), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Auth.SigningKey != "" {
		c.Auth.SigningKey = redacted
	}
	if c.Auth.ClientSecret != "" {
		c.Auth.ClientSecret = redacted
	}
	return c
}

const redacted = "********"

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.Errors{
		"server":      c.Server.validate(),
		"persistence": c.Persistence.validate(),
		"auth":        c.Auth.validate(),
		"lockout":     c.Lockout.Validate(),
		"password":    c.Password.validate(),
		"userinfo":    c.UserInfo.validate(),
		"logging":     c.Logging.validate(),
	}.Filter()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (s Server) validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

func (p Persistence) validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&p.DSN, validation.Required),
	)
}

func (a Auth) validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Issuer, validation.Required),
		validation.Field(&a.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&a.ClientID, validation.Required),
	)
}

func (p Password) validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinLength, validation.Required, validation.Min(1)),
		validation.Field(&p.MaxLength, validation.Required, validation.Min(p.MinLength)),
		validation.Field(&p.HashCost, validation.Min(4), validation.Max(31)),
	)
}

func (u UserInfo) validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.CacheTTL, validation.Required, validation.Min(time.Second)),
	)
}

func (l Logging) validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("text", "json", "pretty")),
	)
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var verrs validation.Errors
	return errors.As(err, &verrs)
}
