package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUserNotFound  = errors.New("user_not_found")
	ErrUsernameTaken = errors.New("username_taken")
	ErrEmailTaken    = errors.New("email_taken")
	ErrInvalidRole   = errors.New("invalid_role")
)

type CreateUserRequest struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
}

type Service interface {
	Create(ctx context.Context, req CreateUserRequest) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListByRole(ctx context.Context, role Role) ([]*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateRole(ctx context.Context, id snowflake.ID, role Role) (*User, error)
}
