package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/farellandr/ticketflow/config"
	"github.com/farellandr/ticketflow/internal/logging"
	"github.com/farellandr/ticketflow/internal/middleware"
	"github.com/farellandr/ticketflow/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ticketflow",
		Short:         "Payment-to-confirmation reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Start(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "override PORT")
	return cmd
}

func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

			db, err := config.InitDatabase(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			logger.Info("migrations applied")

			if seed {
				function, err := config.SeedCatalogue(db)
				if err != nil {
					return fmt.Errorf("failed to seed catalogue: %w", err)
				}
				logger.Info("catalogue seeded", "function_id", function.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "also seed a demo catalogue")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <customer-id>",
		Short: "Print a signed bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(cfg.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
