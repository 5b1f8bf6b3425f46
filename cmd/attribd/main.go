// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"

	"github.com/luxfi/attrib/pkg/admission"
	"github.com/luxfi/attrib/pkg/analytics"
	"github.com/luxfi/attrib/pkg/api"
	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/billing"
	"github.com/luxfi/attrib/pkg/campaign"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/fraud"
	"github.com/luxfi/attrib/pkg/gateway"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
	"github.com/luxfi/attrib/pkg/metric"
	"github.com/luxfi/attrib/pkg/nullifier"
	"github.com/luxfi/attrib/pkg/storage"
	"github.com/luxfi/attrib/pkg/treasury"
)

var (
	Version = "dev"
)

// Config is populated from environment variables, with flags taking
// precedence for the common knobs
type Config struct {
	Env      string `env:"ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Owner is the administrative identity, hex encoded
	Owner string `env:"OWNER" envDefault:""`
	// DefaultPublisher receives payouts for campaigns without an
	// assigned publisher, hex encoded
	DefaultPublisher string `env:"DEFAULT_PUBLISHER" envDefault:""`
	// BillingIdentity is the vault spender identity under which the
	// billing engine debits, hex encoded
	BillingIdentity string `env:"BILLING_IDENTITY" envDefault:""`

	// Rail selects the transfer rail implementation
	Rail string `env:"RAIL" envDefault:"memory"`

	DBType string `env:"DB_TYPE" envDefault:"memory"`
	DBPath string `env:"DB_PATH" envDefault:"/var/lib/attrib"`

	// RedisAddress switches the nullifier registry to a shared Redis
	// store when set
	RedisAddress  string `env:"REDIS_ADDRESS" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`

	PerActionBase  uint64 `env:"RATE_PER_ACTION" envDefault:"1000"`
	PerLeadBase    uint64 `env:"RATE_PER_LEAD" envDefault:"5000"`
	PerInstallBase uint64 `env:"RATE_PER_INSTALL" envDefault:"10000"`

	LargeTransferLimit uint64        `env:"LARGE_TRANSFER_LIMIT" envDefault:"0"`
	TimelockDelay      time.Duration `env:"TIMELOCK_DELAY" envDefault:"48h"`
}

func main() {
	var (
		port     = flag.String("port", "", "HTTP server port (overrides PORT)")
		logLevel = flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
		version  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("attribd v%s\n", Version)
		os.Exit(0)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()

	owner := parseIdentity(cfg, "owner", cfg.Owner, logger)
	defaultPublisher := parseIdentity(cfg, "default publisher", cfg.DefaultPublisher, logger)
	billingIdentity := parseIdentity(cfg, "billing spender", cfg.BillingIdentity, logger)

	emitter := events.NewEmitter()
	policy := authz.NewSingleOwner(owner)

	store, err := storage.New(cfg.DBType, cfg.DBPath)
	if err != nil {
		logger.Fatal("storage init failed", "error", err)
	}
	defer store.Close()

	var registry nullifier.Registry = nullifier.NewStoreRegistry(store)
	if cfg.RedisAddress != "" {
		rr, err := nullifier.NewRedisRegistry(context.Background(), nullifier.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal("redis registry init failed", "error", err)
		}
		defer rr.Close()
		registry = rr
	}

	ledger := campaign.NewLedger(policy, emitter, logger)

	var rail treasury.TransferRail
	switch cfg.Rail {
	case "memory":
		if cfg.Env == "production" {
			logger.Warn("memory transfer rail selected; payouts are recorded in process only")
		}
		rail = treasury.NewMemoryRail()
	default:
		logger.Fatal("unknown transfer rail", "rail", cfg.Rail)
	}

	vault := treasury.NewVault(owner, rail, treasury.Config{
		LargeTransferLimit: cfg.LargeTransferLimit,
		TimelockDelay:      cfg.TimelockDelay,
	}, policy, emitter, logger)

	engine := billing.NewEngine(billingIdentity, defaultPublisher, billing.Rates{
		PerAction:  cfg.PerActionBase,
		PerLead:    cfg.PerLeadBase,
		PerInstall: cfg.PerInstallBase,
	}, ledger, vault, emitter, logger)

	if err := vault.AuthorizeSpender(owner, engine.Identity()); err != nil {
		logger.Fatal("spender authorization failed", "error", err)
	}

	admitter := admission.NewAdmitter(ledger, registry, admission.DevVerifier{}, logger)
	gate := fraud.NewGate(policy, emitter, logger)
	agg := analytics.NewAggregator(analytics.DefaultConfig(), policy, emitter, logger)

	m, err := metric.New()
	if err != nil {
		logger.Fatal("metrics init failed", "error", err)
	}

	gw := gateway.New(ledger, registry, admitter, gate, engine, agg, emitter, m, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(ledger, vault, engine, gw, agg, m, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	logger.Info("attribd started", "version", Version, "port", cfg.Port, "env", cfg.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	emitter.Close()
}

// parseIdentity decodes a configured identity. Development falls back
// to an ephemeral identity; production requires every identity to be
// configured explicitly.
func parseIdentity(cfg Config, role string, s string, logger log.Logger) ids.Identity {
	if s == "" {
		if cfg.Env == "production" {
			logger.Fatal("identity must be configured in production", "role", role)
		}
		id := ids.GenerateTestIdentity()
		logger.Warn("generated ephemeral identity", "role", role, "identity", id)
		return id
	}
	id, err := ids.IdentityFromString(s)
	if err != nil {
		logger.Fatal("invalid identity", "role", role, "error", err)
	}
	return id
}
