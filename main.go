package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gatekeep/internal/config"
	"gatekeep/internal/repositories"
	"gatekeep/internal/services"
	"gatekeep/internal/validation"
	"gatekeep/pkg/rabbitmq"
)

// Global flags available to all subcommands.
var envFile string

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the gatekeep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gatekeep",
		Short:        "gatekeep - account registration and token issuance",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCheckPasswordCmd())
	cmd.AddCommand(NewEventsCmd())

	return cmd
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize application")
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("Error closing connections")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.AppPort).Info("Starting server")
		errCh <- app.Fiber.Listen(cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		log.WithError(err).Error("Server failed")
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	if err := app.Fiber.Shutdown(); err != nil {
		log.WithError(err).Error("Error during Fiber shutdown")
		return err
	}
	log.Info("Server gracefully stopped")
	return nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the accounts table and its indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := repositories.NewGORMAccountRepository(db).Migrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("migrated %s store\n", cfg.DatabaseDriver)
			return nil
		},
	}
}

// passwordReport is the output of check-password.
type passwordReport struct {
	Validation validation.Result   `json:"validation"`
	Strength   validation.Strength `json:"strength"`
}

// NewCheckPasswordCmd creates the check-password subcommand.
func NewCheckPasswordCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check-password <password>",
		Short: "Validate a password and score its strength",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := passwordReport{
				Validation: validation.ValidatePassword(args[0]),
				Strength:   validation.PasswordStrength(args[0]),
			}

			if jsonOutput {
				out, err := json.Marshal(report)
				if err != nil {
					return fmt.Errorf("failed to format JSON: %w", err)
				}
				cmd.Println(string(out))
			} else {
				verdict := "valid"
				if !report.Validation.Valid {
					verdict = fmt.Sprintf("invalid (%s): %s", report.Validation.Reason, report.Validation.Message)
				}
				cmd.Printf("password: %s\nstrength: %d (%s)\n", verdict, report.Strength.Score, report.Strength.Level)
			}

			if !report.Validation.Valid {
				return fmt.Errorf("password rejected: %s", report.Validation.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the report as JSON")

	return cmd
}

// NewEventsCmd creates the events subcommand.
func NewEventsCmd() *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Log account events published by running servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cfg.RabbitMQURL == "" {
				return fmt.Errorf("RABBITMQ_URL is not set")
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := connectBroker(ctx, cfg.RabbitMQURL, log)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Consume(queue, services.EventsExchange, "account.#", logAccountEvent(log)); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "gatekeep.account_events", "queue bound to the accounts exchange")

	return cmd
}

var _ services.EventPublisher = (*rabbitmq.Client)(nil)
