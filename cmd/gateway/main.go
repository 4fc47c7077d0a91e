// Command gateway runs the integration policy and enforcement gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/upb/integration-gateway/app"
	"github.com/upb/integration-gateway/auth/captoken"
	"github.com/upb/integration-gateway/config"
	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/repositories/postgres"
	"github.com/upb/integration-gateway/routes"
	"go.uber.org/zap"
)

type options struct {
	envFile     string
	migrateOnly bool
	issueToken  bool
	terminalID  string
	dashboardID string
	userID      string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	fs.StringVar(&opts.envFile, "env-file", "", "load environment variables from this file before reading config")
	fs.BoolVar(&opts.migrateOnly, "migrate-only", false, "create the database schema and exit")
	fs.BoolVar(&opts.issueToken, "issue-token", false, "print a capability token for --terminal, --dashboard and --user, then exit")
	fs.StringVar(&opts.terminalID, "terminal", "", "terminal id for --issue-token")
	fs.StringVar(&opts.dashboardID, "dashboard", "", "dashboard id for --issue-token")
	fs.StringVar(&opts.userID, "user", "", "user id for --issue-token")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.issueToken && opts.migrateOnly {
		return nil, errors.New("--issue-token and --migrate-only are mutually exclusive")
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	if opts.issueToken {
		return issueToken(cfg, opts, stdout)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if opts.migrateOnly {
		return migrate(ctx, cfg, logger)
	}
	return serve(ctx, cfg, logger)
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat != "json")
}

func issueToken(cfg *config.Config, opts *options, w io.Writer) error {
	svc, err := captoken.New(captoken.Config{
		Secret:   []byte(cfg.Auth.CapabilitySecret),
		Issuer:   cfg.Auth.CapabilityIssuer,
		Audience: cfg.Auth.CapabilityAudience,
		TTL:      cfg.Auth.CapabilityTTL,
	})
	if err != nil {
		return err
	}

	token, err := svc.Issue(opts.terminalID, opts.dashboardID, opts.userID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info("schema initialized")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("tls", cfg.Server.TLS.Enabled))

		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = deps.Close(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	return deps.Close(shutdownCtx)
}
