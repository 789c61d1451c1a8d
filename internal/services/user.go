package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shelfmark/apiserver/internal/store"
	"github.com/shelfmark/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLength = 6
	minPasswordLength = 8
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates registration and login.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register validates the credentials, hashes the password, and persists a
// new user. The advisory username lookup catches most duplicates early; the
// unique index on users.username is authoritative, and a constraint
// violation from the insert is normalized to ErrDuplicateUsername so the
// check-then-insert race is invisible to callers.
func (s *UserService) Register(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)

	fields := map[string]string{}
	if len(username) < minUsernameLength {
		fields["username"] = "must be at least 6 characters"
	}
	if len(password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	if err := newValidationError(fields); err != nil {
		return types.User{}, err
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return types.User{}, ErrDuplicateUsername
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateUsername
		}
		return types.User{}, err
	}
	return user, nil
}

// Login verifies the credentials and returns the matching user. A missing
// user and a failed hash comparison both return ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)

	fields := map[string]string{}
	if username == "" {
		fields["username"] = "is required"
	}
	if password == "" {
		fields["password"] = "is required"
	}
	if err := newValidationError(fields); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}
