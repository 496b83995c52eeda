package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawane/loom/internal/config"
	"github.com/sawane/loom/internal/logger"
	"github.com/sawane/loom/pkg/agent"
	"github.com/sawane/loom/pkg/commandqueue"
	"github.com/sawane/loom/pkg/convstore"
)

// runtime bundles the long-lived pieces every command needs: config,
// logging, the conversation store, the command queue and the agent
// registry.
type runtime struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    convstore.Store
	queue    *commandqueue.CommandQueue
	registry *agent.Registry

	closers []func() error
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		logger: lg.GetZerolog(),
	}
	rt.closers = append(rt.closers, lg.Close)

	store, err := rt.openStore()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	rt.queue = commandqueue.New()
	rt.closers = append(rt.closers, rt.queue.Close)

	rt.registry, err = agent.NewRegistry(agent.RegistryConfig{
		Store:   rt.store,
		Queue:   rt.queue,
		APIKeys: cfg.APIKeys(),
		Defaults: agent.Options{
			Provider:     cfg.Agent.Provider,
			Model:        cfg.Agent.Model,
			SystemPrompt: cfg.Agent.SystemPrompt,
			Temperature:  cfg.Agent.Temperature,
			MaxTokens:    cfg.Agent.MaxTokens,
			MaxSteps:     cfg.Agent.MaxSteps,
			ProjectRoot:  cfg.WorkspaceRoot,
			ToolsEnabled: cfg.Agent.ToolsEnabled,
		},
		Logger: rt.logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

func (rt *runtime) openStore() (convstore.Store, error) {
	switch rt.cfg.Store.Backend {
	case "sqlite":
		store, err := convstore.NewSQLiteStore(rt.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	default:
		store, err := convstore.NewJSONStore(rt.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		return store, nil
	}
}

// startRetention wires the pruning job when the config enables it. The
// returned stop function is a no-op when retention is disabled.
func (rt *runtime) startRetention() (func() error, error) {
	if !rt.cfg.Retention.Enabled {
		return func() error { return nil }, nil
	}

	retention := convstore.NewRetention(rt.store, convstore.RetentionConfig{
		MaxAge:   time.Duration(rt.cfg.Retention.MaxAgeDays) * 24 * time.Hour,
		Schedule: rt.cfg.Retention.Schedule,
	})
	if err := retention.Start(); err != nil {
		return nil, fmt.Errorf("failed to start retention: %w", err)
	}
	return retention.Stop, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
}
