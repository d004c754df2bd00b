package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/pkg/auth"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
	"github.com/jwalitptl/hmis-api/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked, please try again later")
	ErrAccountInactive    = errors.New("account is inactive")
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	auditor  *audit.Service
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher,
	auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

// Login checks the password and issues an access token. Five consecutive
// failures lock the account for fifteen minutes.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, apperrors.Unavailable(err)
	}

	now := s.now()
	switch user.Status {
	case model.UserStatusInactive:
		return nil, apperrors.Unauthorized(ErrAccountInactive)
	case model.UserStatusLocked:
		if user.LastLoginAttempt != nil && now.Sub(*user.LastLoginAttempt) < lockoutDuration {
			return nil, &apperrors.AppError{Code: apperrors.ErrUnauthorized, Message: ErrAccountLocked.Error(), Err: ErrAccountLocked}
		}
		user.Status = model.UserStatusActive
		user.LoginAttempts = 0
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		user.LoginAttempts++
		user.LastLoginAttempt = &now
		if user.LoginAttempts >= maxLoginAttempts {
			user.Status = model.UserStatusLocked
			s.logger.Warn().Str("user_id", user.ID.String()).Msg("account locked after failed logins")
		}
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, apperrors.Unavailable(err)
		}
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	user.LoginAttempts = 0
	user.LastLoginAt = &now
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if hash, err := s.hasher.Hash(password); err == nil {
			user.PasswordHash = hash
		}
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperrors.Unavailable(err)
	}

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.auditor.Record(ctx, user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID.String(), nil)
	return &model.TokenResponse{AccessToken: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

type CreateUserRequest struct {
	Email     string
	Name      string
	Password  string
	Phone     *string
	CreatedBy uuid.UUID // audited actor, uuid.Nil from the CLI
}

// CreateUser registers an active staff account. Roles are assigned separately.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, apperrors.BadRequest("email is required", nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	now := s.now().UTC()
	user := &model.User{
		Base:         model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Email:        email,
		Name:         req.Name,
		PasswordHash: hash,
		Phone:        req.Phone,
		Status:       model.UserStatusActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("email is already registered", err)
		}
		return nil, apperrors.Unavailable(err)
	}

	s.auditor.Record(ctx, req.CreatedBy, model.AuditActionCreate, model.AuditEntityUser, user.ID.String(), &audit.LogOptions{
		Metadata: map[string]string{"email": email},
	})
	return user, nil
}
