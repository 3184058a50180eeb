// Package backend opens the repositories selected by STORE_BACKEND.
package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/fence/cache"
	rediscache "go.pilab.hu/fence/cache/redis"
	"go.pilab.hu/fence/config"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/mongodb"
	"go.pilab.hu/fence/storage/memory"
)

// Stores are the repositories the services run on.
type Stores struct {
	AuthCodes domain.AuthorizationCodeRepository
	Clients   domain.ClientRepository
	Users     domain.UserRepository

	// HealthChecks ping the external stores, keyed by name.
	HealthChecks map[string]func(ctx context.Context) error

	closers []func(ctx context.Context)
}

// Close releases connections and background goroutines in reverse order.
func (s *Stores) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
}

// Open connects to the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{HealthChecks: make(map[string]func(ctx context.Context) error)}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		codes := cache.NewMemoryAuthCodeStore()
		s.closers = append(s.closers, func(context.Context) { _ = codes.Close() })
		s.AuthCodes = codes
		s.Clients = memory.NewClientRepository()
		s.Users = memory.NewUserRepository()
		return s, nil

	case config.BackendMongo, config.BackendRedis:
		provider, err := s.openMongo(ctx, cfg)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.AuthCodes = provider.AuthCodes
		s.Clients = provider.Clients
		s.Users = provider.Users

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.StoreBackend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.closers = append(s.closers, func(context.Context) { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		s.HealthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		s.AuthCodes = rediscache.NewAuthCodeStore(rdb, cfg.RedisPrefix)
	}

	return s, nil
}

func (s *Stores) openMongo(ctx context.Context, cfg *config.Config) (*mongodb.RepositoryProvider, error) {
	client, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func(ctx context.Context) { mongodb.Disconnect(ctx, client) })
	s.HealthChecks["mongo"] = func(ctx context.Context) error { return mongodb.Ping(ctx, client) }

	return mongodb.NewRepositoryProvider(ctx, client.Database(cfg.MongoDBName))
}
