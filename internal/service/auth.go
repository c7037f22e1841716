package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/fathom-labs/corpus/internal/domain"
)

const tokenPrefix = "kb_"

// UserRepositoryInterface defines the repository interface for user persistence
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetTokenHash(ctx context.Context, email, hash string) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.User, error)
}

// AuthService manages users and the bearer tokens that identify them on
// the HTTP surface. Tokens are stored hashed; the plaintext is returned
// once at issuance.
type AuthService struct {
	userRepo UserRepositoryInterface
}

func NewAuthService(userRepo UserRepositoryInterface) *AuthService {
	return &AuthService{userRepo: userRepo}
}

// Register creates a user and issues their first token. Registering an
// existing email is rejected; use IssueToken to rotate a token instead.
func (s *AuthService) Register(ctx context.Context, email, name string) (*domain.User, string, error) {
	if email == "" {
		return nil, "", domain.NewDomainError(domain.ErrCodeValidation, "user email is required")
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, "", domain.ErrUserAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, "", err
	}

	user := domain.NewUser(email, name, time.Now().UTC())
	if err := domain.ValidateUser(user); err != nil {
		return nil, "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid user", err)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(ctx, email)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// IssueToken replaces the user's bearer token, invalidating the old one.
func (s *AuthService) IssueToken(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "user email is required")
	}
	if _, err := s.userRepo.GetByEmail(ctx, email); err != nil {
		return "", err
	}
	return s.issueToken(ctx, email)
}

func (s *AuthService) issueToken(ctx context.Context, email string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate token", err)
	}
	if err := s.userRepo.SetTokenHash(ctx, email, hashToken(token)); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateToken resolves a bearer token to the user it identifies.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	if !IsValidToken(token) {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.userRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return tokenPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// IsValidToken reports whether a string has the kb_<64 hex chars> shape.
func IsValidToken(token string) bool {
	if !strings.HasPrefix(token, tokenPrefix) {
		return false
	}
	hexPart := token[len(tokenPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
