package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gatekeep/internal/config"
	"gatekeep/internal/handlers"
	"gatekeep/internal/metrics"
	"gatekeep/internal/repositories"
	"gatekeep/internal/services"
	"gatekeep/pkg/rabbitmq"
)

// Startup connection attempts back off exponentially from connectBackoff.
const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// App is a fully wired service.
type App struct {
	Fiber   *fiber.App
	Auth    *services.AuthService
	Metrics *metrics.Metrics

	db     *gorm.DB
	broker *rabbitmq.Client
}

// NewApp opens the account store and, when configured, the broker, then
// wires services and routes. The caller owns the returned App and must Close it.
func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	accounts := repositories.NewGORMAccountRepository(db)
	if err := accounts.Migrate(ctx); err != nil {
		closeDatabase(db)
		return nil, err
	}

	a := &App{db: db, Metrics: metrics.New()}

	opts := []services.Option{services.WithLogger(log.WithField("component", "auth"))}
	if cfg.RabbitMQURL != "" {
		broker, err := connectBroker(ctx, cfg.RabbitMQURL, log)
		if err != nil {
			// Events are best-effort; the service runs without them.
			log.WithError(err).Warn("Account events disabled")
		} else {
			a.broker = broker
			opts = append(opts, services.WithEventPublisher(broker))
		}
	}

	hasher := services.NewTimedHasher(services.NewBcryptHasher(cfg.BcryptCost), a.Metrics)
	a.Auth, err = services.NewAuthService(accounts, hasher, services.NewTokenIssuer(cfg.JWTSecret, nil), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Fiber = newFiber(a, cfg, log)
	return a, nil
}

func newFiber(a *App, cfg *config.Config, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "gatekeep",
		DisableStartupMessage: true,
	})

	app.Use(fiberlogger.New(fiberlogger.Config{Output: log.WriterLevel(logrus.InfoLevel)}))

	api := app.Group("/api")
	handlers.NewAuthHandler(a.Auth, a.Metrics, cfg.RequestTimeout, log.WithField("component", "http")).RegisterRoutes(api)

	app.Get("/health", a.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(a.Metrics.Handler()))

	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			app.Static("/", cfg.StaticDir)
		}
	}
	return app
}

func (a *App) handleHealth(c *fiber.Ctx) error {
	status, code := "healthy", fiber.StatusOK
	database := "up"
	if err := a.pingDatabase(c.UserContext()); err != nil {
		status, code, database = "unhealthy", fiber.StatusServiceUnavailable, "down"
	}
	broker := "disabled"
	if a.broker != nil {
		broker = "connected"
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"database": database,
		"rabbitmq": broker,
	})
}

func (a *App) pingDatabase(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close releases the broker and database connections.
func (a *App) Close() error {
	var errs []error
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
	}
	if a.db != nil {
		errs = append(errs, closeDatabase(a.db))
	}
	return errors.Join(errs...)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	var db *gorm.DB
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err != nil {
			return retry.RetryableError(err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func connectBroker(ctx context.Context, url string, log logrus.FieldLogger) (*rabbitmq.Client, error) {
	var client *rabbitmq.Client
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBackoff))
	err := retry.Do(ctx, backoff, func(context.Context) error {
		var err error
		client, err = rabbitmq.NewClient(rabbitmq.Config{
			URL:       url,
			Exchanges: []string{services.EventsExchange},
		}, log.WithField("component", "rabbitmq"))
		if err != nil {
			log.WithError(err).Debug("RabbitMQ not reachable yet")
			return retry.RetryableError(err)
		}
		return nil
	})
	return client, err
}

// logAccountEvent is the consumer used by the events command.
func logAccountEvent(log logrus.FieldLogger) func(amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var event services.AccountEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return fmt.Errorf("failed to decode account event: %w", err)
		}
		log.WithFields(logrus.Fields{
			"type":        event.Type,
			"account_id":  event.AccountID,
			"username":    event.Username,
			"occurred_at": event.OccurredAt,
		}).Info("Account event")
		return nil
	}
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
