package service

import (
	"context"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
)

type UserStore interface {
	GetByID(ctx context.Context, q db.Querier, id int64) (*domain.User, error)
	LockForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.User, error)
	LockForShare(ctx context.Context, q db.Querier, id int64) (*domain.User, error)
	UpdateRole(ctx context.Context, q db.Querier, id int64, role string) error
}

// UserService exposes the account facts the auth layer needs.
type UserService struct {
	conn db.Querier
	repo UserStore
}

func NewUserService(conn db.Querier, repo UserStore) *UserService {
	return &UserService{conn: conn, repo: repo}
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, s.conn, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
