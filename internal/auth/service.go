// Package auth issues and verifies access tokens and owns the register and
// login flows.
package auth

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/config"
	"github.com/billflow/billflow/internal/objectstore"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

var (
	ErrMissingFields      = errors.New("username, email and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token    string          `json:"token"`
	Username string          `json:"username"`
	UserID   string          `json:"user_id"`
	Role     userdomain.Role `json:"role"`
}

type ServiceParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Users  userdomain.Service
	Store  objectstore.Store
}

type Service struct {
	log    *zap.Logger
	clock  clock.Clock
	users  userdomain.Service
	store  objectstore.Store
	issuer *TokenIssuer
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:    p.Log.Named("auth.service"),
		clock:  p.Clock,
		users:  p.Users,
		store:  p.Store,
		issuer: NewTokenIssuer(p.Config.AuthJWTSecret, p.Config.AuthTokenTTL),
	}
}

// Register creates the account and provisions its bucket. Bucket creation
// failing is logged but does not fail registration; EnsureBucket runs again
// on first upload.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*userdomain.User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, userdomain.CreateUserRequest{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         userdomain.RoleUser,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsureBucket(ctx, user.Username); err != nil {
		s.log.Warn("bucket provisioning failed", zap.String("username", user.Username), zap.Error(err))
	}

	s.log.Info("user registered", zap.String("username", user.Username))
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(user.ID, user.Username, string(user.Role), s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:    token,
		Username: user.Username,
		UserID:   user.ID.String(),
		Role:     user.Role,
	}, nil
}

// VerifyToken validates the bearer token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	return s.issuer.Verify(tokenString)
}
