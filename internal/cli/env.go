package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/notestream/internal/config"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/engine"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/store"
)

// env is what a command needs to talk to the engine.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
}

// openEnv loads the config, applies the flag overrides, installs the
// logger, loads the metadata and opens the store. Failures are command
// errors.
func openEnv(opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	if opts.Metadata != "" {
		cfg.Metadata.Dir = opts.Metadata
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger := config.NewLogger(cfg.Log)

	meta := metadata.Default()
	if cfg.Metadata.Dir != "" {
		meta, err = metadata.LoadDir(cfg.Metadata.Dir)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load metadata", err)
		}
	}

	st, err := store.Open(cfg.Database.Path, store.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.Database.Path), err)
	}
	logger.Debug("database opened", "path", cfg.Database.Path, "metadata_dir", cfg.Metadata.Dir)

	return &env{
		cfg:    cfg,
		logger: logger,
		store:  st,
		engine: engine.New(st, meta, engine.WithConfig(cfg.Stream.Engine())),
	}, nil
}

// Close closes the store.
func (e *env) Close() error {
	return e.store.Close()
}

// actor resolves the acting user. Empty and "system" are the system
// user.
func (e *env) actor(ctx context.Context, id string) (*domain.User, error) {
	if id == "" || id == domain.SystemUserID {
		return domain.SystemUser(), nil
	}
	return e.engine.User(ctx, id)
}
