package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/appointment-gateway/database"
	"github.com/Ananth-NQI/appointment-gateway/internal/cache"
	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/delivery"
	"github.com/Ananth-NQI/appointment-gateway/internal/handlers"
	"github.com/Ananth-NQI/appointment-gateway/internal/jobs"
	"github.com/Ananth-NQI/appointment-gateway/internal/middleware"
	"github.com/Ananth-NQI/appointment-gateway/internal/provider"
	"github.com/Ananth-NQI/appointment-gateway/internal/routes"
	"github.com/Ananth-NQI/appointment-gateway/internal/services"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "appointment-gateway",
		Short:   "OTP-gated appointment booking gateway",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			serve(loadConfig())
			return nil
		},
	}
	rootCmd.AddCommand(mintAdminTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	log := newLogger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg, log
}

// mintAdminTokenCmd prints a bearer token for the /api-keys routes signed
// with ADMIN_JWT_SECRET.
func mintAdminTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint-admin-token",
		Short: "Print a signed admin token for the API key routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := middleware.GenerateAdminToken(cfg.AdminJWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "ops", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func serve(cfg config.Config, log zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	// Initialize storage
	var store storage.Store
	if cfg.Database.UseMemoryStore {
		log.Warn().Msg("using in-memory storage (not for production)")
		store = storage.NewMemoryStore()
	} else {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store = storage.NewDatabaseStore(db)
		log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.Name).Msg("using postgres storage")
	}

	var lookupCache cache.Cache
	if cfg.Redis.Enabled() {
		lookupCache = cache.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
		if err := lookupCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, lookups will bypass the cache until it recovers")
		}
	} else {
		lookupCache = cache.NewMemoryCache()
	}
	log.Info().Str("backend", lookupCache.Name()).Msg("lookup cache ready")

	deliverer := delivery.NewDispatcher(emailChannel(cfg, log), smsChannel(cfg, log))
	if cfg.OTP.BypassCode != "" {
		log.Warn().Msg("OTP_BYPASS_CODE is set: every account accepts it as a valid code")
	}

	client := provider.NewClient(cfg.Provider)
	lookups := services.NewLookupService(store, client, lookupCache, cfg)
	otpService := services.NewOTPService(store, deliverer, cfg)
	appointmentService := services.NewAppointmentService(store, client, lookups, cfg)
	apiKeyService := services.NewAPIKeyService(store, lookups)

	maintenance, err := jobs.NewMaintenanceJobs(ctx, otpService, appointmentService, jobs.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	maintenance.Start()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName + " v" + version,
		ErrorHandler: middleware.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Health: handlers.NewHealthHandler(cfg.AppName, version, map[string]handlers.Pinger{
			"store": store,
			"cache": lookupCache,
		}),
		OTP:          handlers.NewOTPHandler(otpService),
		Appointments: handlers.NewAppointmentHandler(lookups, appointmentService, cfg.Booking.Location()),
		APIKeys:      handlers.NewAPIKeyHandler(apiKeyService),
	}, cfg)

	go func() {
		log.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := maintenance.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Str("service", cfg.AppName).Logger()
}

func smsChannel(cfg config.Config, log zerolog.Logger) delivery.Sender {
	switch {
	case cfg.Twilio.Enabled():
		log.Info().Msg("sms delivery via twilio")
		return delivery.NewTwilioSMS(cfg.Twilio)
	case cfg.IsDevelopment():
		return delivery.LogSender{Channel: "sms"}
	default:
		log.Warn().Msg("twilio credentials not found, sms delivery disabled")
		return delivery.Unavailable{}
	}
}

func emailChannel(cfg config.Config, log zerolog.Logger) delivery.Sender {
	switch {
	case cfg.SMTP.Enabled():
		log.Info().Str("host", cfg.SMTP.Host).Msg("email delivery via smtp")
		return delivery.NewSMTPMailer(cfg.SMTP)
	case cfg.IsDevelopment():
		return delivery.LogSender{Channel: "email"}
	default:
		log.Warn().Msg("smtp not configured, email delivery disabled")
		return delivery.Unavailable{}
	}
}
