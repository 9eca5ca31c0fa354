package cache

import (
	"context"

	"github.com/wosledon/AIReview-sub002/internal/config"
	"github.com/wosledon/AIReview-sub002/internal/logging"
	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

// Open selects and opens the cache backend per configuration.
//
// In "auto" mode the shared backend is probed once; if it is unreachable
// the process-local store is selected instead and a degraded-mode warning
// is logged, since cross-instance idempotency guarantees are void from that
// point on. In "redis" mode an unreachable backend is a startup error.
func Open(ctx context.Context, cfg config.CacheConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Mode {
	case "local":
		logger.Info("Using process-local cache backend", logging.Fields{
			"mode": ModeLocal,
		})
		return NewLocal(cfg.CompressMinBytes), nil

	case "redis":
		store := NewRedis(RedisOptions{
			Addr:             cfg.RedisAddr,
			Password:         cfg.RedisPassword,
			DB:               cfg.RedisDB,
			CompressMinBytes: cfg.CompressMinBytes,
		})
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout())
		defer cancel()
		if err := store.Ping(probeCtx); err != nil {
			_ = store.Close()
			return nil, reviewerr.Wrap(reviewerr.BackendUnavailable,
				"redis backend required but unreachable at "+cfg.RedisAddr, err)
		}
		logger.Info("Using shared cache backend", logging.Fields{
			"mode": ModeRedis,
			"addr": cfg.RedisAddr,
		})
		return store, nil

	default: // auto
		store := NewRedis(RedisOptions{
			Addr:             cfg.RedisAddr,
			Password:         cfg.RedisPassword,
			DB:               cfg.RedisDB,
			CompressMinBytes: cfg.CompressMinBytes,
		})
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout())
		defer cancel()
		if err := store.Ping(probeCtx); err != nil {
			_ = store.Close()
			logger.Warn("Shared cache backend unreachable, falling back to process-local store; "+
				"cross-instance execution guarantees are disabled", logging.Fields{
				"mode":  ModeLocalFallback,
				"addr":  cfg.RedisAddr,
				"error": err.Error(),
			})
			return newLocal(cfg.CompressMinBytes, ModeLocalFallback), nil
		}
		logger.Info("Using shared cache backend", logging.Fields{
			"mode": ModeRedis,
			"addr": cfg.RedisAddr,
		})
		return store, nil
	}
}
