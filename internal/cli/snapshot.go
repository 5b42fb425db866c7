package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattfrayser/scenesync/internal/config"
	"github.com/mattfrayser/scenesync/internal/scene"
	"github.com/mattfrayser/scenesync/internal/session"
	"github.com/mattfrayser/scenesync/internal/store"
)

// ErrNoSnapshot is returned when the store holds nothing for a scene.
var ErrNoSnapshot = errors.New("no snapshot stored for scene")

// loadSnapshot reads the persisted scene from the configured store.
func loadSnapshot(ctx context.Context, cfg config.Config, rawID string) (string, *scene.Cache, error) {
	sceneID, err := session.ValidateSceneID(rawID)
	if err != nil {
		return "", nil, err
	}
	if cfg.StorePath == "" {
		return "", nil, fmt.Errorf("%w %s: no store_path configured", ErrNoSnapshot, sceneID)
	}

	storage, err := session.OpenStorage(cfg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if closeErr := storage.Close(); closeErr != nil {
			slog.Error("error closing storage", "error", closeErr)
		}
	}()

	cache, ok, err := store.NewSnapshots(storage).Load(ctx, sceneID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, fmt.Errorf("%w %s", ErrNoSnapshot, sceneID)
	}
	return sceneID, cache, nil
}
