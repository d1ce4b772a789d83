package config

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/farellandr/ticketflow/internal/confirmation"
	"github.com/farellandr/ticketflow/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Config struct {
	Port string `mapstructure:"PORT"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	NodeID    int64  `mapstructure:"NODE_ID"`

	StripeWebhookSecret        string        `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeConnectWebhookSecret string        `mapstructure:"STRIPE_CONNECT_WEBHOOK_SECRET"`
	StripeWebhookTolerance     time.Duration `mapstructure:"STRIPE_WEBHOOK_TOLERANCE"`

	UpsertMode      string `mapstructure:"UPSERT_MODE"`
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`

	ConfirmationPollInterval    time.Duration `mapstructure:"CONFIRMATION_POLL_INTERVAL"`
	ConfirmationMaxAttempts     int           `mapstructure:"CONFIRMATION_MAX_ATTEMPTS"`
	ConfirmationDeadline        time.Duration `mapstructure:"CONFIRMATION_DEADLINE"`
	WebhookConfirmationAttempts int           `mapstructure:"WEBHOOK_CONFIRMATION_ATTEMPTS"`

	AvailabilityMaxChannels       int           `mapstructure:"AVAILABILITY_MAX_CHANNELS"`
	AvailabilityBaseDelay         time.Duration `mapstructure:"AVAILABILITY_BASE_DELAY"`
	AvailabilityMaxReconnects     int           `mapstructure:"AVAILABILITY_MAX_RECONNECTS"`
	AvailabilityLowStockThreshold int           `mapstructure:"AVAILABILITY_LOW_STOCK_THRESHOLD"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]interface{}{
	"PORT":                             "8080",
	"DB_HOST":                          "localhost",
	"DB_PORT":                          "5432",
	"DB_USER":                          "postgres",
	"DB_PASSWORD":                      "",
	"DB_NAME":                          "ticketflow",
	"DB_SSLMODE":                       "disable",
	"JWT_SECRET":                       "",
	"NODE_ID":                          1,
	"STRIPE_WEBHOOK_SECRET":            "",
	"STRIPE_CONNECT_WEBHOOK_SECRET":    "",
	"STRIPE_WEBHOOK_TOLERANCE":         "5m",
	"UPSERT_MODE":                      "transaction",
	"DEFAULT_CURRENCY":                 "usd",
	"CONFIRMATION_POLL_INTERVAL":       "500ms",
	"CONFIRMATION_MAX_ATTEMPTS":        10,
	"CONFIRMATION_DEADLINE":            "5s",
	"WEBHOOK_CONFIRMATION_ATTEMPTS":    5,
	"AVAILABILITY_MAX_CHANNELS":        10,
	"AVAILABILITY_BASE_DELAY":          "1s",
	"AVAILABILITY_MAX_RECONNECTS":      5,
	"AVAILABILITY_LOW_STOCK_THRESHOLD": 10,
	"LOG_LEVEL":                        "info",
	"LOG_FORMAT":                       "text",
}

// LoadConfig reads an optional .env file, then the process environment.
// Environment variables win over .env values, which win over defaults.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		// A missing .env is normal outside local development.
		_ = godotenv.Load(file)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.ConfirmationPollInterval <= 0 {
		problems = append(problems, "CONFIRMATION_POLL_INTERVAL must be positive")
	}
	if c.ConfirmationMaxAttempts <= 0 {
		problems = append(problems, "CONFIRMATION_MAX_ATTEMPTS must be positive")
	}
	if c.WebhookConfirmationAttempts <= 0 {
		problems = append(problems, "WEBHOOK_CONFIRMATION_ATTEMPTS must be positive")
	}
	if c.AvailabilityMaxChannels <= 0 {
		problems = append(problems, "AVAILABILITY_MAX_CHANNELS must be positive")
	}
	if c.AvailabilityLowStockThreshold < 0 {
		problems = append(problems, "AVAILABILITY_LOW_STOCK_THRESHOLD must not be negative")
	}
	if c.UpsertMode != "transaction" && c.UpsertMode != "procedure" {
		problems = append(problems, "UPSERT_MODE must be transaction or procedure")
	}
	if len(c.DefaultCurrency) != 3 || strings.ToLower(c.DefaultCurrency) != c.DefaultCurrency {
		problems = append(problems, "DEFAULT_CURRENCY must be a lowercase three-letter ISO code")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		problems = append(problems, "NODE_ID must be between 0 and 1023")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// ListenDSN is the URL form pgx expects for a dedicated LISTEN connection.
func (c *Config) ListenDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config, log *slog.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate brings the schema up to date. Tables come from AutoMigrate, the
// database functions and triggers from the embedded SQL files.
func Migrate(db *gorm.DB, log *slog.Logger) error {
	if err := enableUUIDExtension(db); err != nil {
		return fmt.Errorf("failed to enable uuid-ossp: %w", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	if err := confirmation.EnsureView(db); err != nil {
		return fmt.Errorf("failed to create confirmation view: %w", err)
	}

	names, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := db.Exec(string(body)).Error; err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		if log != nil {
			log.Debug("applied migration", "name", name)
		}
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
