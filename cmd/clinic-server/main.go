package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/reminder"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/calendar"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/lease"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/migrations"
)

const appName = "clinic-server"

// BookingMailerAdapter adapts the confirmation mailer to
// scheduling.ConfirmationNotifier so the two packages stay independent.
type BookingMailerAdapter struct {
	mailer   *notification.ConfirmationMailer
	timezone string
}

func NewBookingMailerAdapter(m *notification.ConfirmationMailer, timezone string) *BookingMailerAdapter {
	return &BookingMailerAdapter{mailer: m, timezone: timezone}
}

// AppointmentBooked implements scheduling.ConfirmationNotifier.
func (a *BookingMailerAdapter) AppointmentBooked(ctx context.Context, c *scheduling.Confirmation) {
	a.mailer.Send(ctx, notification.BookingDetails{
		AppointmentID: c.AppointmentID,
		PatientName:   c.PatientName,
		PatientEmail:  c.PatientEmail,
		DoctorName:    c.DoctorName,
		ServiceName:   c.ServiceName,
		ServicePrice:  c.ServicePrice,
		Date:          c.Date,
		Time:          c.Time,
		Status:        c.Status,
		Timezone:      a.timezone,
	})
}

func main() {
	rootCmd := &cobra.Command{
		Use:          appName,
		Short:        "Clinic appointment API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server and reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
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
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				fmt.Println(formatStatusRow(s))
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func formatStatusRow(s db.MigrationStatus) string {
	status := "pending"
	appliedAt := ""
	if s.Applied {
		status = "applied"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
	}
	return fmt.Sprintf("%-10d %-40s %-10s %s", s.Version, s.Name, status, appliedAt)
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Appointment reminder jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Run one reminder scan and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			clock, err := newClock(cfg)
			if err != nil {
				return err
			}
			scheduler := reminder.NewScheduler(reminder.NewRepoPG(pool), newDispatcher(cfg, logger), clock, nil, logger)
			scheduler.Concurrency = cfg.ReminderConcurrency

			res, err := scheduler.Tick(ctx, clock.Now())
			if err != nil {
				return fmt.Errorf("reminder tick: %w", err)
			}
			fmt.Printf("candidates=%d sent=%d failed=%d\n", res.Candidates, res.Sent, res.Failed)
			return nil
		},
	})

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: appName,
	})
}

func newClock(cfg *config.Config) (*calendar.Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return calendar.NewClock(loc), nil
}

// newDispatcher picks real senders when credentials are configured and falls
// back to logging otherwise.
func newDispatcher(cfg *config.Config, logger zerolog.Logger) *notification.Dispatcher {
	var email notification.EmailSender
	if cfg.SMTPEnabled() {
		email = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn().Msg("SMTP_HOST not set, emails will only be logged")
		email = notification.NewLogSender(logger)
	}

	var sms notification.SMSSender
	if cfg.SMSEnabled() {
		sms = notification.NewTwilioSender(notification.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
		})
	}
	return notification.NewDispatcher(notification.NewTemplateEngine(), email, sms, logger)
}

func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lease.Locker, func()) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, reminder lease is process-local")
		return lease.NewLocal(), func() {}
	}
	r, err := lease.NewRedisFromURL(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, reminder lease is process-local")
		return lease.NewLocal(), func() {}
	}
	return r, func() { _ = r.Close() }
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func()) {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}, func() {}
	}
	p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, appointment events are not published")
		return events.NopPublisher{}, func() {}
	}
	logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing appointment events")
	return p, func() { _ = p.Close() }
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		l := newLogger(nil)
		l.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg)

	clock, err := newClock(cfg)
	if err != nil {
		return err
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Scheduling
	repos := scheduling.Repositories{
		Doctors:      scheduling.NewCachedDoctorRepo(scheduling.NewDoctorRepoPG(pool), cfg.CatalogCacheSize, scheduling.CatalogTTL),
		Services:     scheduling.NewCachedMedicalServiceRepo(scheduling.NewMedicalServiceRepoPG(pool), cfg.CatalogCacheSize, scheduling.CatalogTTL),
		Patients:     scheduling.NewPatientRepoPG(pool),
		Appointments: scheduling.NewAppointmentRepoPG(pool),
		History:      scheduling.NewHistoryRepoPG(pool),
	}
	svc := scheduling.NewService(db.NewTransactor(pool), repos, clock, logger)

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()
	svc.SetPublisher(publisher)

	dispatcher := newDispatcher(cfg, logger)
	mailer := notification.NewConfirmationMailer(dispatcher, logger)
	svc.SetNotifier(NewBookingMailerAdapter(mailer, clock.Location().String()))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthJWTSecret),
			Skipper:    auth.AuthSkipper,
		}))
	}

	registerHealth(e, pool)
	apiV1 := e.Group("/api/v1")
	scheduling.NewHandler(svc).RegisterRoutes(apiV1)

	// Reminders
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	if cfg.ReminderEnabled {
		locker, closeLocker := newLocker(ctx, cfg, logger)
		defer closeLocker()
		scheduler := reminder.NewScheduler(reminder.NewRepoPG(pool), dispatcher, clock, locker, logger)
		scheduler.Interval = cfg.ReminderInterval
		scheduler.Concurrency = cfg.ReminderConcurrency
		go func() {
			defer close(schedDone)
			scheduler.Run(schedCtx)
		}()
	} else {
		close(schedDone)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", clock.Location().String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-schedDone
	mailer.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

func registerHealth(e *echo.Echo, pool *pgxpool.Pool) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": appName,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
}
