package app

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"unifeed/internal/infra"
	"unifeed/internal/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config   *infra.Config
	Recorder *storage.Recorder

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration, sets up logging, prepares the
// workspace and opens the capture journal when recording is enabled.
func (b *Bootstrap) Initialize() error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))

	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data")
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// One process per workspace: two writers on the same journal would
	// corrupt it.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	if cfg.Recorder.Enabled {
		path := cfg.Recorder.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		rec, err := storage.NewRecorder(path)
		if err != nil {
			return fmt.Errorf("failed to open recorder journal: %w", err)
		}
		b.Recorder = rec
		slog.Info("Recorder journal open (WAL-mode)", "path", path)
	}

	return nil
}

// Shutdown releases the journal and the instance lock.
func (b *Bootstrap) Shutdown() {
	if b.Recorder != nil {
		if err := b.Recorder.Close(); err != nil {
			slog.Warn("Recorder close failed", "err", err)
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
