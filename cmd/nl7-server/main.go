package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stoneson/NextLevelSeven/internal/config"
	"github.com/stoneson/NextLevelSeven/internal/domain/exchange"
	"github.com/stoneson/NextLevelSeven/internal/platform/auth"
	"github.com/stoneson/NextLevelSeven/internal/platform/db"
	"github.com/stoneson/NextLevelSeven/internal/platform/middleware"
	"github.com/stoneson/NextLevelSeven/internal/platform/telemetry"
	"github.com/stoneson/NextLevelSeven/internal/platform/webhook"
	"github.com/stoneson/NextLevelSeven/pkg/hl7"
	"github.com/stoneson/NextLevelSeven/pkg/hl7/codec"
)

const serverVersion = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "nl7-server",
		Short: "HL7v2 message exchange server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(ackCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HL7v2 exchange server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrateFirst, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrateFirst)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before starting")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Parse a message file and print its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			msg, err := hl7.Parse(string(data))
			if err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}

			if path != "" {
				coords, err := parseCoordinatePath(path)
				if err != nil {
					return err
				}
				value, err := msg.Get(coords...)
				if err != nil {
					return err
				}
				fmt.Println(value)
				return nil
			}

			printMessageSummary(msg)
			return nil
		},
	}
	cmd.Flags().String("path", "",
		"Print a single value by coordinate path, e.g. 1.9.1.1 (segment.field.repetition.component.subcomponent)")
	return cmd
}

func ackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack <file>",
		Short: "Generate an acknowledgment for a message file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			reason, _ := cmd.Flags().GetString("reason")

			ackCode := hl7.AckCode(strings.ToUpper(code))
			switch ackCode {
			case hl7.AckAccept, hl7.AckError, hl7.AckReject:
			default:
				return fmt.Errorf("invalid ack code %q: must be AA, AE or AR", code)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			msg, err := hl7.Parse(string(data))
			if err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}

			ack, err := hl7.GenerateAck(msg, ackCode, reason)
			if err != nil {
				return err
			}
			fmt.Println(strings.ReplaceAll(ack.Value(), "\r", "\n"))
			return nil
		},
	}
	cmd.Flags().String("code", "AA", "Acknowledgment code (AA, AE or AR)")
	cmd.Flags().String("reason", "", "Text message for the MSA segment")
	return cmd
}

// parseCoordinatePath converts a dot-separated path like "1.9.1.1" into
// 1-based coordinates for Message.Get.
func parseCoordinatePath(path string) ([]int, error) {
	parts := strings.Split(path, ".")
	if len(parts) > 5 {
		return nil, fmt.Errorf("coordinate path %q has more than 5 levels", path)
	}
	coords := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("coordinate path element %q must be a positive integer", p)
		}
		coords[i] = n
	}
	return coords, nil
}

func printMessageSummary(msg *hl7.Message) {
	get := func(coords ...int) string {
		v, err := msg.Get(coords...)
		if err != nil {
			return ""
		}
		return v
	}

	msgType := get(1, 9, 1, 1)
	if trigger := get(1, 9, 1, 2); trigger != "" {
		msgType += "^" + trigger
	}
	fmt.Printf("Message type:  %s\n", msgType)
	fmt.Printf("Control ID:    %s\n", get(1, 10))
	fmt.Printf("Version:       %s\n", get(1, 12))
	fmt.Printf("Sending:       %s / %s\n", get(1, 3), get(1, 4))
	fmt.Printf("Receiving:     %s / %s\n", get(1, 5), get(1, 6))
	if ts := get(1, 7); ts != "" {
		if t, err := codec.ParseTimestamp(ts); err == nil {
			fmt.Printf("Timestamp:     %s (%s)\n", ts, t.Format(time.RFC3339))
		} else {
			fmt.Printf("Timestamp:     %s\n", ts)
		}
	}
	fmt.Printf("Segments:      %d\n", msg.ValueCount())
	fmt.Println()

	for si, seg := range msg.Segments() {
		fmt.Printf("%2d  %s\n", si+1, seg.Name())
		for fi := 1; fi <= seg.ValueCount(); fi++ {
			f, err := seg.Field(fi)
			if err != nil || !f.Exists() {
				continue
			}
			fmt.Printf("      %s-%-3d %s\n", seg.Name(), fi, f.Value())
		}
	}
}

func runServer(migrateFirst bool) error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrateFirst {
		migrator := db.NewMigrator(pool, cfg.MigrationsDir)
		count, err := migrator.Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		logger.Info().Int("applied", count).Msg("migrations up to date")
	}

	// Telemetry
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "nl7-server",
		ServiceVersion: serverVersion,
		Environment:    cfg.Env,
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())

	// Auth middleware
	if cfg.AuthEnabled {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			SigningKey: []byte(cfg.JWTSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		e.Use(auth.DevAuthMiddleware())
	}

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	// Health checks and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": serverVersion,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tp.PrometheusHandler())

	// Webhook delivery
	whStore := webhook.NewInMemoryWebhookStore()
	whManager := webhook.NewWebhookManager(whStore, webhook.WithMaxAttempts(cfg.WebhookMaxRetries))
	whHandler := webhook.NewWebhookHandler(whManager)
	whHandler.RegisterRoutes(apiV1.Group("/webhooks", auth.RequireRole("admin")))

	// Message routing. The catch-all accepts every type; site-specific
	// handlers registered with a type or trigger take precedence.
	router := hl7.NewRouter()
	router.Handle("", "", func(ctx context.Context, msg hl7.MessageReader) error {
		msgType, _ := msg.Get(1, 9, 1, 1)
		trigger, _ := msg.Get(1, 9, 1, 2)
		logger.Debug().
			Str("message_type", msgType).
			Str("trigger_event", trigger).
			Msg("message routed")
		return nil
	})

	// Exchange domain
	msgRepo := exchange.NewRepo(pool)
	exchangeSvc := exchange.NewService(msgRepo)
	exchangeSvc.SetRouter(router)
	exchangeSvc.SetEventSink(whManager)
	exchangeSvc.SetTelemetry(tp)
	exchangeSvc.SetLogger(logger)
	exchangeSvc.SetLocalIdentity(cfg.SendingApp, cfg.SendingFacility)
	exchangeHandler := exchange.NewHandler(exchangeSvc)
	exchangeHandler.RegisterRoutes(apiV1.Group("/hl7"))

	// Pool and stored-message gauges for /metrics
	statsCtx, statsCancel := context.WithCancel(ctx)
	defer statsCancel()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-statsCtx.Done():
				return
			case <-ticker.C:
				stats := db.GetPoolStats(pool)
				tp.HealthMetrics().SetDBPoolActive(int64(stats.AcquiredConns))
				tp.HealthMetrics().SetDBPoolIdle(int64(stats.IdleConns))
				if n, err := exchangeSvc.CountMessages(statsCtx); err == nil {
					tp.HealthMetrics().SetMessagesStored(n)
				}
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	_ = tp.Shutdown(shutdownCtx)
	logger.Info().Msg("server stopped")
	return nil
}
