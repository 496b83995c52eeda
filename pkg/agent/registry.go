package agent

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sawane/loom/pkg/commandqueue"
	"github.com/sawane/loom/pkg/convstore"
	"github.com/sawane/loom/pkg/filetools"
	"github.com/sawane/loom/pkg/provider"
	"github.com/sawane/loom/pkg/toolexec"
)

// agentKey identifies one cached agent configuration.
type agentKey struct {
	provider     string
	model        string
	projectRoot  string
	toolsEnabled bool
}

// Registry builds and caches agents per (provider, model, project root,
// tools) configuration over shared store and queue instances. Dependencies
// are injected at construction; there is no package-level instance.
type Registry struct {
	store    convstore.Store
	queue    *commandqueue.CommandQueue
	apiKeys  map[string]string
	defaults Options
	logger   zerolog.Logger

	mu     sync.Mutex
	agents map[agentKey]*Agent
}

// RegistryConfig holds registry dependencies. APIKeys maps provider names
// to credentials; Defaults fills in unset per-request options.
type RegistryConfig struct {
	Store    convstore.Store
	Queue    *commandqueue.CommandQueue
	APIKeys  map[string]string
	Defaults Options
	Logger   zerolog.Logger
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	return &Registry{
		store:    cfg.Store,
		queue:    cfg.Queue,
		apiKeys:  cfg.APIKeys,
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
		agents:   make(map[agentKey]*Agent),
	}, nil
}

// Get returns the agent for the given options, building it on first use.
// Unset option fields fall back to the registry defaults.
func (r *Registry) Get(opts Options) (*Agent, error) {
	opts = r.withDefaults(opts)
	if opts.Provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if opts.ProjectRoot == "" {
		opts.ToolsEnabled = false
	}

	key := agentKey{
		provider:     opts.Provider,
		model:        opts.Model,
		projectRoot:  opts.ProjectRoot,
		toolsEnabled: opts.ToolsEnabled,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.agents[key]; ok {
		return cached, nil
	}

	client, err := provider.New(opts.Provider, r.apiKeys[opts.Provider])
	if err != nil {
		return nil, err
	}

	var executor *toolexec.Executor
	if opts.ToolsEnabled {
		executor = toolexec.New()
		fileProvider, err := filetools.NewProvider(opts.ProjectRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to scope file tools: %w", err)
		}
		if err := filetools.Register(executor, fileProvider); err != nil {
			return nil, fmt.Errorf("failed to register file tools: %w", err)
		}
	}

	built, err := New(Config{
		Store:    r.store,
		Client:   client,
		Executor: executor,
		Queue:    r.queue,
		Options:  opts,
		Logger:   r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.agents[key] = built
	r.logger.Debug().
		Str("provider", opts.Provider).
		Str("model", opts.Model).
		Str("project_root", opts.ProjectRoot).
		Bool("tools", opts.ToolsEnabled).
		Msg("Agent created")

	return built, nil
}

func (r *Registry) withDefaults(opts Options) Options {
	if opts.Provider == "" {
		opts.Provider = r.defaults.Provider
	}
	if opts.Model == "" {
		opts.Model = r.defaults.Model
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = r.defaults.SystemPrompt
	}
	if opts.Temperature == 0 {
		opts.Temperature = r.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = r.defaults.MaxTokens
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = r.defaults.MaxSteps
	}
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = r.defaults.ProjectRoot
	}
	if !opts.ToolsEnabled {
		opts.ToolsEnabled = r.defaults.ToolsEnabled
	}
	return opts
}
