// Package cli assembles engines from configuration and drives the
// terminal-facing commands: one-shot questions, the interactive chat
// loop, and history listing.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	backend "github.com/redis/go-redis/v9"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/internal/config"
	"github.com/quarrydata/quarry/pkg/adapters/file"
	memadapter "github.com/quarrydata/quarry/pkg/adapters/memory"
	"github.com/quarrydata/quarry/pkg/adapters/openai"
	"github.com/quarrydata/quarry/pkg/adapters/process"
	redisadapter "github.com/quarrydata/quarry/pkg/adapters/redis"
	"github.com/quarrydata/quarry/pkg/adapters/sqlite"
	"github.com/quarrydata/quarry/pkg/persistence/middleware"
	"github.com/quarrydata/quarry/pkg/ports"
	"github.com/quarrydata/quarry/pkg/prompts"
)

// BuildEngine wires a quarry engine from configuration. Extra options are
// applied after the configured ones, so callers can attach observers or
// hooks. The returned cleanup closes whatever stores were opened; call it
// when the engine is no longer needed.
func BuildEngine(cfg *config.Config, logger *slog.Logger, extra ...quarry.Option) (*quarry.Engine, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup failed", "err", err)
			}
		}
	}
	fail := func(err error) (*quarry.Engine, func(), error) {
		cleanup()
		return nil, nil, err
	}

	opts := []quarry.Option{
		quarry.WithLogger(logger),
		quarry.WithModel(buildModel(cfg)),
		quarry.WithRetryBounds(cfg.Graph.MaxCorrection, cfg.Graph.MaxReflection),
		quarry.WithMaxHops(cfg.Graph.MaxHops),
		quarry.WithTimeouts(cfg.Model.Timeout.Std(), cfg.Graph.WarehouseTimeout.Std()),
		quarry.WithSandboxLimits(ports.ResourceLimits{
			WallClock:      cfg.Sandbox.WallClock.Std(),
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
			MemoryBytes:    cfg.Sandbox.MemoryBytes,
		}),
	}

	if cfg.Stores.WarehousePath != "" {
		wh, err := sqlite.OpenWarehouse(cfg.Stores.WarehousePath)
		if err != nil {
			return fail(fmt.Errorf("open warehouse %s: %w", cfg.Stores.WarehousePath, err))
		}
		closers = append(closers, wh.Close)
		opts = append(opts, quarry.WithWarehouse(wh))
	}

	if cfg.Stores.MemoryPath != "" {
		mem, err := sqlite.OpenMemory(cfg.Stores.MemoryPath)
		if err != nil {
			return fail(fmt.Errorf("open memory store %s: %w", cfg.Stores.MemoryPath, err))
		}
		closers = append(closers, mem.Close)
		opts = append(opts, quarry.WithMemoryStore(mem))
	}

	// Checkpoint backend: redis wins over the file store; with neither
	// configured the engine's in-memory default stands unless middleware
	// needs a store to wrap.
	var checkpoints ports.CheckpointStore
	switch {
	case cfg.Stores.RedisAddr != "":
		client := backend.NewClient(&backend.Options{Addr: cfg.Stores.RedisAddr})
		closers = append(closers, client.Close)
		checkpoints = redisadapter.NewFromClient(client)
		opts = append(opts, quarry.WithDistributedLocker(redisadapter.NewLocker(client, "quarry:lock:")))
	case cfg.Stores.CheckpointDir != "":
		checkpoints = file.New(cfg.Stores.CheckpointDir)
	}

	mws, err := buildMiddleware(cfg)
	if err != nil {
		return fail(err)
	}
	if len(mws) > 0 {
		if checkpoints == nil {
			checkpoints = memadapter.NewCheckpointStore()
		}
		checkpoints = middleware.Chain(checkpoints, mws...)
	}
	if checkpoints != nil {
		opts = append(opts, quarry.WithCheckpointStore(checkpoints))
	}

	if cfg.Sandbox.Runtime == "process" {
		sb, err := buildProcessSandbox(cfg, logger)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, quarry.WithSandbox(sb))
	}

	if cfg.PromptsDir != "" {
		lib, err := prompts.Open(cfg.PromptsDir)
		if err != nil {
			return fail(fmt.Errorf("open prompts %s: %w", cfg.PromptsDir, err))
		}
		opts = append(opts, quarry.WithPromptLibrary(lib))
	}

	opts = append(opts, extra...)

	eng, err := quarry.New(opts...)
	if err != nil {
		return fail(err)
	}
	return eng, cleanup, nil
}

func buildModel(cfg *config.Config) ports.ModelClient {
	mopts := []openai.Option{
		openai.WithModel(cfg.Model.Name),
		openai.WithRequestTimeout(cfg.Model.Timeout.Std()),
	}
	if cfg.Model.BaseURL != "" {
		mopts = append(mopts, openai.WithBaseURL(cfg.Model.BaseURL))
	}
	apiKey := cfg.Model.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return openai.New(apiKey, mopts...)
}

// buildMiddleware assembles the persistence middleware chain: masking
// first so ciphertext never carries raw PII, then encryption.
func buildMiddleware(cfg *config.Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if cfg.Stores.MaskPII {
		mws = append(mws, middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns()))
	}
	if cfg.Stores.CheckpointKey != "" {
		key, err := middleware.ParseKey(cfg.Stores.CheckpointKey)
		if err != nil {
			return nil, fmt.Errorf("checkpoint key: %w", err)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return mws, nil
}

func buildProcessSandbox(cfg *config.Config, logger *slog.Logger) (*process.Sandbox, error) {
	popts := []process.Option{process.WithLogger(logger)}

	if cfg.Sandbox.InterpretersPath != "" {
		registry, err := process.LoadInterpreters(cfg.Sandbox.InterpretersPath)
		if err != nil {
			return nil, fmt.Errorf("load interpreters %s: %w", cfg.Sandbox.InterpretersPath, err)
		}
		if ic, ok := registry[cfg.Sandbox.Interpreter]; ok {
			return process.New(append(popts, process.FromConfig(ic))...), nil
		}
		if cfg.Sandbox.Interpreter != "" {
			return nil, fmt.Errorf("interpreter %q not defined in %s", cfg.Sandbox.Interpreter, cfg.Sandbox.InterpretersPath)
		}
	}

	if cfg.Sandbox.Interpreter != "" {
		popts = append(popts, process.WithInterpreter(cfg.Sandbox.Interpreter))
	}
	return process.New(popts...), nil
}
