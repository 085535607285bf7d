package database

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/store"
)

// OpenStore opens the progress store selected by STORE_DRIVER.
func OpenStore(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverBolt:
		s, err := store.OpenBolt(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store %s: %w", cfg.StorePath, err)
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.StorePath).Msg("Progress store opened")
		return s, nil

	case config.StoreDriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("store driver %s needs a redis client", cfg.StoreDriver)
		}
		log.Info().Str("driver", cfg.StoreDriver).Msg("Progress store opened")
		return store.NewRedis(rdb), nil

	case config.StoreDriverMemory:
		log.Warn().Msg("Progress store is in memory, checkpoints do not survive a restart")
		return store.NewMemory(), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
