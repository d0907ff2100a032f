package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-auth-server/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authd",
		Short:         "OAuth2 password grant token server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}

	config.Flags(root.PersistentFlags())
	root.PersistentFlags().Bool("print-config", false, "print the resolved configuration on startup")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newUserCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, *glog.BaseLogger, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := newLogger(cfg.Logging, os.Stderr)

	if show, _ := cmd.Flags().GetBool("print-config"); show {
		fmt.Fprintln(cmd.OutOrStdout(), "============")
		fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(cfg.Redacted()))
		fmt.Fprintln(cmd.OutOrStdout(), "============")
	}

	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Serve(ctx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Persistence.Migrate = true

			app, err := newApp(contextOf(cmd), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			logger.Info("migrations applied", "driver", cfg.Persistence.Driver)
			return nil
		},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
