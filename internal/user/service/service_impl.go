package service

import (
	"context"
	"strings"

	"github.com/billflow/billflow/pkg/db"
	"github.com/billflow/billflow/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	userdomain "github.com/billflow/billflow/internal/user/domain"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	users repository.Repository[userdomain.User]
}

func NewService(p ServiceParam) userdomain.Service {
	return &Service{
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		users: repository.ProvideStore[userdomain.User](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req userdomain.CreateUserRequest) (*userdomain.User, error) {
	role := req.Role
	if role == "" {
		role = userdomain.RoleUser
	}
	if role != userdomain.RoleUser && role != userdomain.RoleAdmin {
		return nil, userdomain.ErrInvalidRole
	}

	user := &userdomain.User{
		ID:           s.genID.Generate(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: req.PasswordHash,
		Role:         role,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			if existing, lookupErr := s.GetByUsername(ctx, user.Username); lookupErr == nil && existing != nil {
				return nil, userdomain.ErrUsernameTaken
			}
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.users.FindOne(ctx, &userdomain.User{ID: id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	user, err := s.users.FindOne(ctx, &userdomain.User{Username: strings.TrimSpace(username)})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) ListByRole(ctx context.Context, role userdomain.Role) ([]*userdomain.User, error) {
	return s.users.Find(ctx, &userdomain.User{Role: role}, repository.WithOrder("username asc"))
}

func (s *Service) List(ctx context.Context) ([]*userdomain.User, error) {
	return s.users.Find(ctx, &userdomain.User{}, repository.WithOrder("created_at desc"))
}

func (s *Service) UpdateRole(ctx context.Context, id snowflake.ID, role userdomain.Role) (*userdomain.User, error) {
	if role != userdomain.RoleUser && role != userdomain.RoleAdmin {
		return nil, userdomain.ErrInvalidRole
	}
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.users.Update(ctx, int64(user.ID), user); err != nil {
		return nil, err
	}
	s.log.Info("user role updated", zap.String("username", user.Username), zap.String("role", string(role)))
	return user, nil
}
