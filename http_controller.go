package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type AuthControllerRoutes struct {
	Token      string
	UserInfo   string
	Introspect string
	Register   string
	Users      string
	Clients    string
}

// DefaultRoutes are the endpoint paths used when none are configured.
func DefaultRoutes() *AuthControllerRoutes {
	return &AuthControllerRoutes{
		Token:      "/connect/token",
		UserInfo:   "/connect/userinfo",
		Introspect: "/connect/introspect",
		Register:   "/api/account/register",
		Users:      "/api/account/users",
		Clients:    "/api/clients",
	}
}

// AuthController serves the token, userinfo, introspection, account and
// client endpoints.
type AuthController struct {
	Debug        bool
	Logger       Logger
	Routes       *AuthControllerRoutes
	Issuer       *TokenIssuer
	Tokens       TokenService
	UserInfo     *UserInfoCache
	Registration *RegistrationService
	Directory    *UserDirectory
	Clients      *ClientRegistry
	// ClientsRole, when set, is required to manage clients.
	ClientsRole string
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: DefaultRoutes(),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Issuer == nil {
		panic("Missing TokenIssuer in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.UserInfo == nil || c.Registration == nil || c.Directory == nil || c.Clients == nil {
		panic("Missing account or client services in auth controller...")
	}

	return c
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithTokenIssuer(issuer *TokenIssuer, tokens TokenService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Issuer = issuer
		c.Tokens = tokens
		return c
	}
}

func WithUserInfoCache(u *UserInfoCache) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.UserInfo = u
		return c
	}
}

func WithAccountServices(r *RegistrationService, d *UserDirectory) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Registration = r
		c.Directory = d
		return c
	}
}

func WithClientRegistry(r *ClientRegistry, requiredRole string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Clients = r
		c.ClientsRole = requiredRole
		return c
	}
}

// RegisterAuthRoutes mounts every endpoint of the controller on app.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	bearer := BearerMiddleware(controller.Tokens, "")
	clientsGuard := BearerMiddleware(controller.Tokens, controller.ClientsRole)

	app.Post(controller.Routes.Token, controller.Token).SetName("token.post")
	app.Get(controller.Routes.Token, controller.Token).SetName("token.get")

	app.Get(controller.Routes.UserInfo, bearer(controller.UserInfoGet)).SetName("userinfo.get")
	app.Post(controller.Routes.Introspect, controller.Introspect).SetName("introspect.post")

	app.Post(controller.Routes.Register, controller.RegistrationCreate).SetName("register.post")
	app.Get(controller.Routes.Users, bearer(controller.UsersList)).SetName("users.get")

	app.Get(controller.Routes.Clients, clientsGuard(controller.ClientsList)).SetName("clients.get")
	app.Post(controller.Routes.Clients, clientsGuard(controller.ClientsCreate)).SetName("clients.post")
	app.Delete(controller.Routes.Clients, clientsGuard(controller.ClientsDelete)).SetName("clients.delete.empty")
	app.Delete(controller.Routes.Clients+"/:clientId", clientsGuard(controller.ClientsDelete)).SetName("clients.delete")
}

// Token handles the password grant. GET reads the query string, POST
// requires a form encoded body.
func (a *AuthController) Token(ctx router.Context) error {
	ctx.SetHeader("Cache-Control", "no-store")
	ctx.SetHeader("Pragma", "no-cache")

	if ctx.Method() == http.MethodPost && !isFormRequest(ctx) {
		return sendGrantError(ctx, NewGrantError(ErrorCodeInvalidRequest,
			"The request must use the application/x-www-form-urlencoded content type."))
	}

	req := GrantRequest{
		GrantType: ctx.FormValue("grant_type"),
		Username:  ctx.FormValue("username"),
		Password:  ctx.FormValue("password"),
		Scopes:    ParseScopes(ctx.FormValue("scope")),
		ClientID:  ctx.FormValue("client_id"),
	}

	resp, gerr := a.Issuer.Exchange(ctx.Context(), req)
	if gerr != nil {
		if gerr.Code == ErrorCodeServerError {
			a.Logger.Error("token request failed", "error", gerr)
		}
		return sendGrantError(ctx, gerr)
	}

	return ctx.JSON(router.StatusOK, resp)
}

// UserInfoGet returns the cached userinfo claims of the bearer.
func (a *AuthController) UserInfoGet(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok || strings.TrimSpace(claims.Subject()) == "" {
		return sendChallenge(ctx, NewGrantError(ErrorCodeInvalidToken, DescriptionMissingSubject))
	}

	info, err := a.UserInfo.Get(ctx.Context(), claims.Subject())
	if err != nil {
		var gerr *GrantError
		if errors.As(err, &gerr) && gerr.Code == ErrorCodeInvalidToken {
			return sendChallenge(ctx, gerr)
		}
		a.Logger.Error("userinfo lookup failed", "sub", claims.Subject(), "error", err)
		return sendGrantError(ctx, ErrServerError)
	}

	return ctx.JSON(router.StatusOK, info)
}

// IntrospectionResponse represents an OAuth 2.0 Token Introspection response (RFC 7662)
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	TokenID   string   `json:"jti,omitempty"`
}

// Introspect reports whether a token is active. The caller
// authenticates as a client with HTTP Basic or form credentials.
func (a *AuthController) Introspect(ctx router.Context) error {
	ctx.SetHeader("Cache-Control", "no-store")

	if !isFormRequest(ctx) {
		return sendGrantError(ctx, NewGrantError(ErrorCodeInvalidRequest,
			"The request must use the application/x-www-form-urlencoded content type."))
	}

	clientID, secret, ok := parseBasicAuth(ctx.Header(router.HeaderAuthorization))
	if !ok {
		clientID, secret = ctx.FormValue("client_id"), ctx.FormValue("client_secret")
	}

	app, err := a.Clients.Authenticate(ctx.Context(), clientID, secret)
	if err != nil || !app.HasPermission(PermissionEndpointIntrospection) {
		if err != nil && !errors.Is(err, ErrInvalidClient) {
			a.Logger.Error("client authentication failed", "client_id", clientID, "error", err)
			return sendGrantError(ctx, ErrServerError)
		}
		ctx.SetHeader("WWW-Authenticate", `Basic realm="introspection"`)
		return sendGrantError(ctx, ErrInvalidClient)
	}

	token := ctx.FormValue("token")
	if token == "" {
		return sendGrantError(ctx, NewGrantError(ErrorCodeInvalidRequest, "The mandatory 'token' parameter is missing."))
	}

	claims, err := a.Tokens.Validate(token)
	if err != nil {
		return ctx.JSON(router.StatusOK, IntrospectionResponse{Active: false})
	}

	resp := IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(claims.Scopes(), " "),
		ClientID:  app.ClientID,
		Username:  claims.Username(),
		TokenType: TokenTypeBearer,
		ExpiresAt: claims.Expires().Unix(),
		IssuedAt:  claims.IssuedAt().Unix(),
		Subject:   claims.Subject(),
		TokenID:   claims.TokenID(),
	}
	if tc, ok := claims.(*TokenClaims); ok {
		resp.Issuer = tc.Issuer
		resp.Audience = tc.Audience
	}

	return ctx.JSON(router.StatusOK, resp)
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	FullName string `json:"fullName" form:"fullName"`
	UserName string `json:"userName" form:"userName"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 256), is.Email),
		validation.Field(&r.FullName, validation.Length(0, 200)),
		validation.Field(&r.UserName, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Debug("register user parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, Outcome{Message: MessageInvalidData})
	}

	if a.Debug {
		redacted := *payload
		redacted.Password = "********"
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(redacted))
		fmt.Println("============================")
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Debug("register user validate payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"flag":       false,
			"message":    MessageInvalidData,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	outcome, err := a.Registration.Register(ctx.Context(), RegistrationCandidate{
		Email:    payload.Email,
		FullName: payload.FullName,
		UserName: payload.UserName,
		Password: payload.Password,
	})
	if err != nil {
		a.Logger.Error("register user failed", "error", err)
		return sendGrantError(ctx, ErrServerError)
	}

	if !outcome.Flag {
		return ctx.JSON(router.StatusBadRequest, outcome)
	}
	return ctx.JSON(router.StatusOK, outcome)
}

func (a *AuthController) UsersList(ctx router.Context) error {
	users, err := a.Directory.ListUsers(ctx.Context())
	if err != nil {
		a.Logger.Error("list users failed", "error", err)
		return sendGrantError(ctx, ErrServerError)
	}
	return ctx.JSON(router.StatusOK, users)
}

func (a *AuthController) ClientsList(ctx router.Context) error {
	clients, err := a.Clients.List(ctx.Context())
	if err != nil {
		a.Logger.Error("list clients failed", "error", err)
		return sendGrantError(ctx, ErrServerError)
	}
	return ctx.JSON(router.StatusOK, clients)
}

func (a *AuthController) ClientsCreate(ctx router.Context) error {
	payload := new(ClientDescriptor)
	if err := ctx.Bind(payload); err != nil {
		return sendMessage(ctx, router.StatusBadRequest, "Invalid client payload")
	}

	if a.Debug {
		redacted := *payload
		redacted.ClientSecret = ""
		fmt.Println("======= AUTH CLIENT ======")
		fmt.Println(print.MaybePrettyJSON(redacted))
		fmt.Println("==========================")
	}

	summary, err := a.Clients.Create(ctx.Context(), *payload)
	switch {
	case err == nil:
		return ctx.JSON(http.StatusCreated, summary)
	case errors.Is(err, ErrClientExists):
		return sendMessage(ctx, http.StatusConflict, fmt.Sprintf("Client '%s' already exists.", payload.ClientID))
	case errors.Is(err, ErrInvalidClientID):
		return sendMessage(ctx, router.StatusBadRequest, "Invalid clientId")
	default:
		a.Logger.Error("create client failed", "client_id", payload.ClientID, "error", err)
		return sendGrantError(ctx, ErrServerError)
	}
}

func (a *AuthController) ClientsDelete(ctx router.Context) error {
	clientID := ctx.Param("clientId")

	err := a.Clients.Delete(ctx.Context(), clientID)
	switch {
	case err == nil:
		return ctx.Status(http.StatusNoContent).SendString("")
	case errors.Is(err, ErrInvalidClientID):
		return sendMessage(ctx, router.StatusBadRequest, "Invalid clientId")
	case errors.Is(err, ErrClientNotFound):
		return sendMessage(ctx, http.StatusNotFound, fmt.Sprintf("Client '%s' not found", clientID))
	default:
		a.Logger.Error("delete client failed", "client_id", clientID, "error", err)
		return sendGrantError(ctx, ErrServerError)
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors by field.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, fe := range verrs {
			out[field] = fe.Error()
		}
		return out
	}
	if err != nil {
		out["form"] = err.Error()
	}
	return out
}

func sendGrantError(ctx router.Context, gerr *GrantError) error {
	return ctx.JSON(gerr.HTTPStatus(), gerr)
}

func sendChallenge(ctx router.Context, gerr *GrantError) error {
	ctx.SetHeader("WWW-Authenticate", fmt.Sprintf(`Bearer error="%s", error_description="%s"`,
		gerr.Code, strings.ReplaceAll(gerr.Description, `"`, `'`)))
	return ctx.JSON(router.StatusUnauthorized, gerr)
}

func sendMessage(ctx router.Context, status int, message string) error {
	return ctx.JSON(status, map[string]string{"message": message})
}

func isFormRequest(ctx router.Context) bool {
	ct := strings.ToLower(ctx.Header(router.HeaderContentType))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

func parseBasicAuth(header string) (string, string, bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	id, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	// client credentials are form encoded before base64, RFC 6749 2.3.1
	if id, err = url.QueryUnescape(id); err != nil {
		return "", "", false
	}
	if secret, err = url.QueryUnescape(secret); err != nil {
		return "", "", false
	}
	return id, secret, true
}
