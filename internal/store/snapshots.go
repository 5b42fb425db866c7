package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattfrayser/scenesync/internal/scene"
)

const keyPrefix = "scene:"

// Key returns the storage key of a scene snapshot.
func Key(sceneID string) string {
	return keyPrefix + sceneID
}

// Snapshots persists keyed scenes on top of a Storage.
type Snapshots struct {
	storage Storage
}

func NewSnapshots(storage Storage) *Snapshots {
	return &Snapshots{storage: storage}
}

// Load: reads the snapshot of sceneID. ok is false when none was stored
func (s *Snapshots) Load(ctx context.Context, sceneID string) (*scene.Cache, bool, error) {
	raw, ok, err := s.storage.Get(ctx, Key(sceneID))
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", sceneID, err)
	}
	if !ok {
		return nil, false, nil
	}

	cache := scene.New()
	if err := json.Unmarshal(raw, cache); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", sceneID, err)
	}
	return cache, true, nil
}

// Store: writes the keyed part of cache. Returns ErrQuotaExceeded (wrapped)
// when the storage is full
func (s *Snapshots) Store(ctx context.Context, sceneID string, cache *scene.Cache) error {
	raw, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", sceneID, err)
	}
	if err := s.storage.Set(ctx, Key(sceneID), raw); err != nil {
		return fmt.Errorf("store snapshot %s: %w", sceneID, err)
	}
	return nil
}
