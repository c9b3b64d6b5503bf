package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"appointly/backend/internal/config"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/events"
	"appointly/backend/internal/identity"
	"appointly/backend/internal/store"
	"appointly/backend/internal/store/memory"
	"appointly/backend/internal/store/mongodb"
	"appointly/backend/internal/store/postgres"
)

type backend struct {
	repo  store.Repository
	users store.UserDirectory
	close func(context.Context) error
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return backend{}, err
		}
		repo := postgres.NewRepo(db)
		return backend{
			repo:  repo,
			users: repo,
			close: func(context.Context) error { return postgres.Close(db) },
		}, nil

	case config.StoreDriverMongo:
		log.Info("connecting to mongo", databaseLogArgs(cfg.MongoURL)...)
		s, err := mongodb.Open(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.MongoURL)...)
			log.Error("mongo connection failed", args...)
			return backend{}, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return backend{}, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return backend{repo: s, users: s, close: s.Close}, nil

	case config.StoreDriverMemory:
		users, err := parseUserSeeds(cfg.MemoryUsers)
		if err != nil {
			return backend{}, err
		}
		log.Warn("using in-memory store; data is lost on restart", slog.Int("seeded_users", len(users)))
		s := memory.New()
		for _, u := range users {
			s.PutUser(u)
		}
		return backend{repo: s, users: s}, nil
	}
	return backend{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// parseUserSeeds reads comma-separated id:role pairs.
func parseUserSeeds(raw string) ([]domain.User, error) {
	var users []domain.User
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, roleStr, ok := strings.Cut(pair, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("memory.users: %q is not id:role", pair)
		}
		role, err := domain.ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("memory.users: %w", err)
		}
		users = append(users, domain.User{ID: id, Role: role})
	}
	return users, nil
}

// identityResolver reads users from the store, through a redis cache when
// redis.addr is set.
func identityResolver(log *slog.Logger, cfg config.Config, dir store.UserDirectory) (identity.Resolver, func(context.Context) error) {
	base := identity.NewDirectoryResolver(dir)
	if cfg.RedisAddr == "" {
		return base, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("identity cache enabled", slog.String("redis_addr", cfg.RedisAddr), slog.Duration("ttl", cfg.IdentityCacheTTL))
	return identity.NewCachedResolver(base, rdb, cfg.IdentityCacheTTL, log),
		func(context.Context) error { return rdb.Close() }
}

func eventPublisher(log *slog.Logger, cfg config.Config) (events.Publisher, func(context.Context) error) {
	brokers := events.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		log.Info("event publishing disabled")
		return events.Nop{}, nil
	}
	p := events.NewKafkaPublisher(brokers, cfg.KafkaTopicPrefix, events.WithLogger(log))
	log.Info("publishing events to kafka", slog.Any("brokers", brokers), slog.String("topic_prefix", cfg.KafkaTopicPrefix))
	return p, func(context.Context) error { return p.Close() }
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
