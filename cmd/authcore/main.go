package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jobready/authcore/cmd/authcore/cli"
	"github.com/jobready/authcore/internal/app"
	"github.com/jobready/authcore/internal/audit"
	"github.com/jobready/authcore/internal/observability"
	"github.com/jobready/authcore/internal/platform/cache"
	"github.com/jobready/authcore/internal/platform/db"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/roles"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/users"
	"github.com/jobready/authcore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		var code exitCodeError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return exitCodeError(code)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "authcore",
		Short:         "Identity, role and permission service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	var dryRun bool
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.MigrateOptions{DryRun: dryRun, Schema: db.Schema(), Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
			if dryRun {
				return exitWith(cli.MigrateCommand(cmd.Context(), nil, opts))
			}
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				logger.Error("connect postgres", slog.Any("error", err))
				return err
			}
			defer pool.Close()
			return exitWith(cli.MigrateCommand(cmd.Context(), func(ctx context.Context) error {
				return db.Migrate(ctx, pool)
			}, opts))
		},
	}
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the schema instead of applying it")
	root.AddCommand(migrateCmd)

	var adminEmail, adminPassword string
	var adminJSON bool
	seedCmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or promote the bootstrap superuser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				logger.Error("connect postgres", slog.Any("error", err))
				return err
			}
			defer pool.Close()
			svc := users.NewService(users.NewPGRepository(pool), users.ServiceConfig{
				BcryptCost: cfg.BcryptCost,
				Audit:      shared.NewAuditLogger(pool),
				Logger:     logger,
			})
			return exitWith(cli.SeedAdminCommand(cmd.Context(), svc, cli.SeedAdminOptions{
				Email:      adminEmail,
				Password:   adminPassword,
				JSONOutput: adminJSON,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	seedCmd.Flags().StringVar(&adminEmail, "email", os.Getenv("AUTHCORE_ADMIN_EMAIL"), "Superuser email (env AUTHCORE_ADMIN_EMAIL)")
	seedCmd.Flags().StringVar(&adminPassword, "password", os.Getenv("AUTHCORE_ADMIN_PASSWORD"), "Superuser password (env AUTHCORE_ADMIN_PASSWORD)")
	seedCmd.Flags().BoolVar(&adminJSON, "json", false, "Print JSON output")
	root.AddCommand(seedCmd)

	var accountIDs []string
	var invalidateJSON bool
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Enqueue principal cache invalidation for accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			jobsCLI, err := cli.NewJobsCLI(cfg.RedisClientOpt())
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			return exitWith(jobsCLI.InvalidateCommand(cmd.Context(), cli.InvalidateOptions{
				AccountIDs: append(accountIDs, args...),
				JSONOutput: invalidateJSON,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	invalidateCmd.Flags().StringSliceVar(&accountIDs, "account", nil, "Account id to invalidate (repeatable)")
	invalidateCmd.Flags().BoolVar(&invalidateJSON, "json", false, "Print JSON output")
	root.AddCommand(invalidateCmd)

	root.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "Show invalidation queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			jobsCLI, err := cli.NewJobsCLI(cfg.RedisClientOpt())
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			return exitWith(jobsCLI.QueueCommand(cmd.Context(), cli.QueueOptions{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}))
		},
	})

	return root
}

func bootstrap() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer pool.Close()

	var principalCache rbac.PrincipalCache
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, principal cache disabled", slog.Any("error", err))
	} else {
		defer closeRedis(logger, redisClient)
		principalCache = rbac.NewRedisPrincipalCache(redisClient, cfg.PrincipalCacheTTL)
	}

	var invalidator rbac.Invalidator
	if cfg.AsyncInvalidation() {
		client, err := jobs.NewClient(cfg.RedisClientOpt())
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		invalidator = client
	}

	services, err := app.NewServices(app.ServiceDeps{
		Stores:      pgStores(pool),
		Tokens:      cfg.TokenConfig(),
		Cache:       principalCache,
		Invalidator: invalidator,
		Audit:       shared.NewAuditLogger(pool),
		Logger:      logger,
		BcryptCost:  cfg.BcryptCost,
	})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		return err
	}

	inspector := asynq.NewInspector(cfg.RedisClientOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Services:   services,
		Metrics:    observability.NewMetrics(),
		JobHandler: jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func pgStores(pool *pgxpool.Pool) app.Stores {
	return app.Stores{
		Accounts:    users.NewPGRepository(pool),
		Roles:       roles.NewPGRepository(pool),
		Assignments: rbac.NewPGRepository(pool),
		Audit:       audit.NewPGRepository(pool),
	}
}

func closeRedis(logger *slog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
