package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/reddit-clone/backend/internal/auth"
	"github.com/emilythestrangee/reddit-clone/backend/internal/config"
	"github.com/emilythestrangee/reddit-clone/backend/internal/database"
	"github.com/emilythestrangee/reddit-clone/backend/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/backend/internal/logger"
	"github.com/emilythestrangee/reddit-clone/backend/internal/server"
	"github.com/emilythestrangee/reddit-clone/backend/internal/telemetry"
	"github.com/emilythestrangee/reddit-clone/backend/internal/voting"
)

var (
	rootCmd = &cobra.Command{
		Use:          "api",
		Short:        "Backend for the reddit clone",
		SilenceUsage: true,
		RunE:         serve,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database and start the HTTP server",
		RunE:  serve,
	}

	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down|drop]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "drop"},
		RunE:      migrateRun,
	}
)

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrMissingSessionSecret) {
		return err
	}

	switch args[0] {
	case "up":
		err = database.MigrateUp(cfg.DatabaseURL)
	case "down":
		err = database.MigrateDown(cfg.DatabaseURL)
	case "drop":
		err = database.Drop(cfg.DatabaseURL)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Done")
	return nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Debug)

	shutdownTracing, err := telemetry.Setup(cmd.Context(), telemetry.Config{
		ServiceName:  "reddit-api",
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("flushing traces")
		}
	}()

	if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		return err
	}
	db, err := database.New(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping().Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}

	sessions := auth.NewManager(auth.NewRedisSessions(rdb, cfg.SessionTTL), cfg.SessionSecret, cfg.SessionTTL, !cfg.Debug)
	engine := voting.NewEngine(voting.NewGormStore(db.GetDB()), voting.Options{
		MaxRetries:  cfg.VoteMaxRetries,
		VerifyScore: cfg.VoteVerifyScore,
	}, log)

	h := handlers.NewHandler(handlers.Deps{
		DB:          db.GetDB(),
		Sessions:    sessions,
		ResetTokens: auth.NewRedisResetTokens(rdb, cfg.ResetTokenTTL),
		Mailer:      auth.LogMailer{Log: log},
		Voter:       engine,
		Log:         log,
		PageSizeMax: cfg.PageSizeMax,
		FrontendURL: cfg.FrontendURL,
	})
	srv := server.New(cfg, db, h, sessions, log).HTTPServer()

	return run(cmd.Context(), srv, log)
}

func run(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server is starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	stop()

	log.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
