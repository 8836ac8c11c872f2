package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/fasch-registrar-api/pkg/config"
)

// Namespace prefixes every key written by the registrar.
const Namespace = "registrar"

// NewRedis returns a configured Redis client. When caching is disabled it
// returns a nil client and no error so callers can degrade to direct reads.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Key joins parts under the registrar namespace, e.g. registrar:stats:course:<id>.
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}
