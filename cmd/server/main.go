package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/api"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/ratelimit"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type rateLimitConfig struct {
	Threshold int `yaml:"threshold"`
	WindowSec int `yaml:"window_seconds"`
}

type config struct {
	ListenAddr    string                     `yaml:"listen_addr"`
	TLSCertFile   string                     `yaml:"tls_cert"`
	TLSKeyFile    string                     `yaml:"tls_key"`
	DBUrl         string                     `yaml:"db_url"`
	Environment   string                     `yaml:"environment"`
	MigrationsDir string                     `yaml:"migrations_dir"`
	LogLevel      string                     `yaml:"log_level"`
	MaxViolations int                        `yaml:"max_violations"`
	SweepHours    int                        `yaml:"sweep_hours"`
	RateLimits    map[string]rateLimitConfig `yaml:"rate_limits"`
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("FIELDOPS_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":8080",
		Environment:   "development",
		MigrationsDir: "migrations",
		LogLevel:      "info",
		SweepHours:    24,
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("FIELDOPS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FIELDOPS_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DBUrl == "" {
		log.Fatal().Msg("db_url must be configured (or DATABASE_URL env var)")
	}

	limits := ratelimit.DefaultLimits()
	for category, rl := range cfg.RateLimits {
		if rl.Threshold <= 0 || rl.WindowSec <= 0 {
			log.Fatal().Str("category", category).Msg("rate limit threshold and window_seconds must be positive")
		}
		limits[category] = ratelimit.Limit{
			Threshold: rl.Threshold,
			Window:    time.Duration(rl.WindowSec) * time.Second,
		}
	}

	ctx := context.Background()

	// Connect to database
	store, err := storage.NewPostgresStore(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	// Run migrations
	if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")

	srv := api.NewServer(store, api.Config{
		ListenAddr:    cfg.ListenAddr,
		TLSCertFile:   cfg.TLSCertFile,
		TLSKeyFile:    cfg.TLSKeyFile,
		Environment:   cfg.Environment,
		MaxViolations: cfg.MaxViolations,
		SweepInterval: time.Duration(cfg.SweepHours) * time.Hour,
		RateLimits:    limits,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Str("env", cfg.Environment).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
