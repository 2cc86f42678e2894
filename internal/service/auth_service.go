package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/ids"
	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository"
	"github.com/ardhptr21/myits-lapor/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type TokenIssuer interface {
	Issue(userID, email, role string) (string, error)
}

type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	log    zerolog.Logger

	hashPassword func(string) ([]byte, error)
}

func NewAuthService(users UserStore, tokens TokenIssuer, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:        users,
		tokens:       tokens,
		log:          log,
		hashPassword: security.HashPassword,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LoginResult struct {
	User  models.User
	Token string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	email := normalizeEmail(input.Email)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return models.User{}, newError(KindConflict, msgUserExists)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, Internal(err)
	}

	passwordHash, err := s.hashPassword(input.Password)
	if err != nil {
		return models.User{}, Internal(err)
	}

	user, err := s.users.Create(ctx, models.User{
		ID:           ids.New(),
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	})
	if err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, repository.ErrEmailTaken) {
			return models.User{}, newError(KindConflict, msgUserExists)
		}
		return models.User{}, Internal(err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Login answers unknown emails and wrong passwords with the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, Unauthorized(msgInvalidCredentials)
		}
		return LoginResult{}, Internal(err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return LoginResult{}, Unauthorized(msgInvalidCredentials)
	}
	if !ok {
		return LoginResult{}, Unauthorized(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		return LoginResult{}, Internal(err)
	}

	return LoginResult{User: user, Token: token}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, NotFound(msgUserNotFound)
		}
		return models.User{}, Internal(err)
	}
	return user, nil
}
