package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xingyunzhou/augment2api/pkg/config"
)

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	return OpenWithLockTimeout(ctx, cfg, boltOpenTimeout)
}

// OpenWithLockTimeout is Open with a custom wait for the bolt file lock.
// Offline tools pass a short timeout so a running server makes them fail
// fast with ErrStoreLocked.
func OpenWithLockTimeout(ctx context.Context, cfg config.StoreConfig, lockTimeout time.Duration) (Store, error) {
	switch cfg.Backend {
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	case config.StoreBackendRedis:
		return OpenRedis(ctx, cfg.RedisURL)
	case config.StoreBackendBolt, "":
		return OpenBoltTimeout(cfg.Path, lockTimeout)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
