// Command agentrtd is the runtime's process entrypoint: it loads
// configuration, wires every subsystem together, serves the HTTP surface of
// spec.md §6, and shuts down cleanly on SIGINT/SIGTERM. Grounded on the
// teacher's (itsneelabh/gomind) core/cmd/example/main.go construction order
// (build dependencies, then Initialize, then Start) generalized with a
// signal-driven graceful shutdown in the idiomatic net/http style.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corebound/agentrt/agent"
	"github.com/corebound/agentrt/agent/builtin"
	"github.com/corebound/agentrt/auth"
	"github.com/corebound/agentrt/backpressure"
	"github.com/corebound/agentrt/config"
	"github.com/corebound/agentrt/httpapi"
	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/memory/inprocess"
	"github.com/corebound/agentrt/memory/redisbackend"
	"github.com/corebound/agentrt/memory/sqlbackend"
	"github.com/corebound/agentrt/observability"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/runtimelog"
	"github.com/corebound/agentrt/validation"
)

// Exit codes per spec.md §6: 0 is a healthy shutdown, everything else is a
// configuration, security, or fatal-startup failure.
const (
	exitOK                = 0
	exitConfigError       = 1
	exitSecurityError     = 2
	exitStartupError      = 3
	exitShutdownError     = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, validated, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentrtd: configuration error: %v\n", err)
		return exitConfigError
	}

	logger := runtimelog.NewProductionLogger(cfg.ServiceName, cfg.Logging.Level, cfg.Logging.Format)

	mem, err := openMemory(cfg)
	if err != nil {
		logger.Error("failed to open memory backend", map[string]any{"error": err.Error(), "provider": cfg.Memory.Provider})
		return exitStartupError
	}
	defer mem.Close()

	var tel observability.Telemetry = observability.NoOp{}
	if cfg.Telemetry.Enabled {
		tel = observability.New()
	}
	if sqlMem, ok := mem.(*sqlbackend.Backend); ok {
		sqlMem.SetTelemetry(tel)
	}

	secret, err := resolveSigningSecret(cfg, logger)
	if err != nil {
		logger.Error("failed to resolve auth signing secret", map[string]any{"error": err.Error()})
		return exitSecurityError
	}

	keys := auth.NewInMemoryKeyStore(cfg.Auth.APIKeyPrefix)
	validator := auth.NewValidator(secret, keys, cfg.Auth.APIKeyPrefix, cfg.Auth.RateLimitRPS, cfg.Auth.RateLimitBurst)

	toolRegistry := registry.NewInMemory(0)
	builtin.RegisterTools(toolRegistry)
	policy := &registry.SecurityPolicy{}
	reg := registry.NewPolicyWrapper(toolRegistry, policy, registry.AllowAllRoles{})

	factory := agent.NewFactory()
	factory.RegisterBuilder(builtin.NewEchoBuilder(reg))
	factory.RegisterBuilder(builtin.NewAdvancedBuilder(reg))
	factory.RegisterBuilder(builtin.NewAnalyticsBuilder(reg))

	factory.SetTelemetry(tel)

	bpCfg := backpressure.Config{
		MaxQueueSize:          validated.QueueSize,
		MaxConcurrentPerAgent: validated.Concurrency,
		GlobalMaxConcurrent:   validated.GlobalConcurrency,
		LoadThreshold:         validated.LoadThreshold,
		QueueTimeout:          time.Duration(cfg.Backpressure.QueueTimeoutSeconds) * time.Second,
		ProcessingTimeout:     time.Duration(cfg.Backpressure.ProcessingTimeoutSeconds) * time.Second,
		TargetProcessingTime:  time.Duration(cfg.Backpressure.TargetProcessingTimeMS) * time.Millisecond,
		TickInterval:          cfg.Backpressure.AdaptiveTickInterval,
	}
	mode, err := backpressure.ParseMode(cfg.Backpressure.Mode)
	if err != nil {
		logger.Error("invalid backpressure mode", map[string]any{"error": err.Error()})
		return exitConfigError
	}
	bpCfg.Mode = mode

	handler := func(ctx context.Context, agentID string, input validation.ValidatedInput) (string, error) {
		inst, ok := factory.Get(agentID)
		if !ok {
			return "", &agent.FactoryError{Kind: agent.ErrAgentNotFound, Detail: "agent '" + agentID + "' not found"}
		}
		return inst.ExecuteStep(ctx, input)
	}
	bp := backpressure.NewManager(bpCfg, handler, logger)
	defer bp.Close()

	server := httpapi.NewServer(httpapi.Deps{
		Factory:      factory,
		Backpressure: bp,
		Validator:    validator,
		Config:       cfg,
		Validated:    validated,
		Logger:       logger,
		Telemetry:    tel,
		Memory:       mem,
		Registry:     reg,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      server.Handler(),
		ReadTimeout:  validated.RequestTimeout.Duration(),
		WriteTimeout: validated.RequestTimeout.Duration(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("agentrtd listening", map[string]any{"address": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", map[string]any{"error": err.Error()})
			return exitStartupError
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", map[string]any{"error": err.Error()})
		factory.ShutdownAllAgents()
		return exitShutdownError
	}

	evicted := factory.ShutdownAllAgents()
	logger.Info("agentrtd shut down cleanly", map[string]any{"agents_evicted": evicted})
	return exitOK
}

func openMemory(cfg *config.Config) (memory.Backend, error) {
	ctx := context.Background()
	switch cfg.Memory.Provider {
	case "sqlite":
		return sqlbackend.Open(ctx, cfg.Memory.SQLitePath, cfg.ServiceName, cfg.Memory.SQLitePoolSize)
	case "redis":
		return redisbackend.Open(ctx, cfg.Memory.RedisURL, cfg.ServiceName, 0)
	case "inprocess", "":
		return inprocess.New(), nil
	default:
		return nil, fmt.Errorf("unknown memory provider %q", cfg.Memory.Provider)
	}
}

// resolveSigningSecret wraps auth.ResolveSecret so a production deployment
// with no configured secret and no way to generate one safely is treated as
// a security configuration failure rather than silently falling back.
func resolveSigningSecret(cfg *config.Config, logger runtimelog.Logger) (secret auth.SecretSource, err error) {
	if cfg.Production && cfg.Auth.SigningSecret == "" {
		logger.Warn("no AGENTRT_AUTH_SIGNING_SECRET configured in production; a random secret will be generated and all previously issued tokens will be rejected", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return auth.ResolveSecret(cfg.Auth.SigningSecret, cfg.Production, logger), nil
}
