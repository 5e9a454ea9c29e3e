package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/passgate/internal/config"
	"github.com/hitoshi/passgate/internal/database"
	"github.com/hitoshi/passgate/internal/repository"
)

// Stores は設定から構築したユーザーストアとセッションストアを保持する。
type Stores struct {
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	// Pingers はヘルスチェック対象のストア。キーはストア名。
	Pingers map[string]repository.Pinger

	closers []func() error
}

// Close は開いた接続を逆順に閉じる。
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStores はDATABASE_URLとSESSION_STOREに従ってストアを開く。
// 途中で失敗した場合はそれまでに開いた接続を閉じてからエラーを返す。
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	backend, err := cfg.DatabaseBackend()
	if err != nil {
		return nil, err
	}

	s := &Stores{Pingers: make(map[string]repository.Pinger)}

	if err := s.openUserStore(ctx, cfg, backend); err != nil {
		_ = s.Close()
		return nil, err
	}

	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		if err := s.openRedisSessions(ctx, cfg.RedisURL); err != nil {
			_ = s.Close()
			return nil, err
		}
	case config.SessionStoreMemory:
		s.Sessions = repository.NewMemorySessionRepo()
	}
	// SESSION_STORE=database の場合はopenUserStoreで設定済み

	slog.Info("stores opened",
		slog.String("user_store", string(backend)),
		slog.String("session_store", cfg.SessionStore),
	)
	return s, nil
}

func (s *Stores) openUserStore(ctx context.Context, cfg *config.Config, backend config.Backend) error {
	switch backend {
	case config.BackendPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL, database.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		s.closers = append(s.closers, db.Close)
		s.Users = repository.NewPostgresUserRepo(db)
		s.Sessions = repository.NewPostgresSessionRepo(db)
		s.Pingers["postgres"] = db

	case config.BackendMongo:
		client, db, err := database.OpenMongo(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error {
			return client.Disconnect(context.Background())
		})
		users := repository.NewMongoUserRepo(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			return err
		}
		sessions := repository.NewMongoSessionRepo(db)
		if err := sessions.EnsureIndexes(ctx); err != nil {
			return err
		}
		s.Users = users
		s.Sessions = sessions
		s.Pingers["mongo"] = database.MongoPinger{Client: client}

	case config.BackendMemory:
		s.Users = repository.NewMemoryUserRepo()
		s.Sessions = repository.NewMemorySessionRepo()

	default:
		return fmt.Errorf("unsupported database backend %q", backend)
	}
	return nil
}

func (s *Stores) openRedisSessions(ctx context.Context, redisURL string) error {
	client, err := database.OpenRedis(ctx, redisURL)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, client.Close)
	s.Sessions = repository.NewRedisSessionRepo(client)
	s.Pingers["redis"] = database.RedisPinger{Client: client}
	return nil
}
