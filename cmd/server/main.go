package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"practice-scheduler/internal/app"
	"practice-scheduler/internal/config"
	"practice-scheduler/internal/logging"
	"practice-scheduler/internal/server"
)

const serviceName = "practice-scheduler"

func main() {
	rootCmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Therapist scheduling API",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Init(serviceName, cfg.Env, cfg.LogLevel)

			ctx := context.Background()
			pool, err := app.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := app.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(serviceName, cfg.Env, cfg.LogLevel)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().Msg("connected to database")

	a := &app.App{
		Store:    app.NewPostgresStore(pool),
		Location: cfg.Location,
	}
	a.Calendar = app.NewGoogleCalendar(app.GoogleCalendarConfig{
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		RedirectURL:     cfg.GoogleRedirectURL,
		StateSecret:     cfg.OAuthStateSecret,
		BreakerFailures: cfg.CalendarBreakerFailures,
		BreakerTimeout:  cfg.CalendarBreakerTimeout,
		Location:        cfg.Location,
	})
	if a.Calendar != nil {
		a.Busy = a.Calendar
	} else {
		log.Warn().Msg("google calendar not configured; slots use stored appointments only")
	}

	tokens := app.ParseStaticTokens(cfg.StaticTokens)
	if len(tokens) == 0 && cfg.JWTHMACSecret == "" {
		log.Warn().Msg("no STATIC_TOKENS or JWT_HMAC_SECRET set; every API request will be rejected")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(log.Logger))
	a.Routes(router, app.AuthMiddleware(app.AuthConfig{
		StaticTokens: tokens,
		JWTSecret:    cfg.JWTHMACSecret,
	}))

	return server.Run(ctx, router, cfg.Addr())
}
