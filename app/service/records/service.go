package records

import (
	"context"
	"fmt"
	"log/slog"

	"voicedesk/app/apperr"
	"voicedesk/app/config"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
)

// Store is the document store holding one record per user email.
// GetRecord returns nil without an error when the user is unknown.
type Store interface {
	GetRecord(ctx context.Context, email string) (*User, error)
	PutRecord(ctx context.Context, email string, user *User) error
	List(ctx context.Context) ([]*User, error)
}

var _ do.Shutdownable = (*Service)(nil)

// Service exposes a Store and reports every failure as apperr.ErrPersistence.
type Service struct {
	store Store
	rdb   *redis.Client
}

func New(di *do.Injector) (*Service, error) {
	appCtx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	switch cfg.Store.Driver {
	case "redis":
		rdb, err := ConnectRedis(appCtx, cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}

		slog.Info("Using redis document store", "prefix", cfg.Store.KeyPrefix)

		return &Service{
			store: NewRedisStore(rdb, cfg.Store.KeyPrefix),
			rdb:   rdb,
		}, nil
	default:
		store, err := NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}

		slog.Info("Using file document store", "path", cfg.Store.Path)

		return NewService(store), nil
	}
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
	}
}

func (s *Service) GetRecord(ctx context.Context, email string) (*User, error) {
	user, err := s.store.GetRecord(ctx, email)
	if err != nil {
		return nil, apperr.Persistence("records", fmt.Errorf("get %s: %w", Key(email), err))
	}

	return user, nil
}

func (s *Service) PutRecord(ctx context.Context, email string, user *User) error {
	if err := s.store.PutRecord(ctx, email, user); err != nil {
		return apperr.Persistence("records", fmt.Errorf("put %s: %w", Key(email), err))
	}

	return nil
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return Report{}, apperr.Persistence("records", fmt.Errorf("list: %w", err))
	}

	return BuildReport(users), nil
}

func (s *Service) Shutdown() error {
	if s.rdb == nil {
		return nil
	}

	return s.rdb.Close()
}
