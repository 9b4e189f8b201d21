package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/errcode"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("user already exists")
)

// User is a stored account record.
type User struct {
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile is the client-facing view of a user; it never carries the secret.
type Profile struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a durable keyed user table. Create must fail with ErrConflict when
// the email already exists.
type Store interface {
	Get(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User) error
}

// Hasher hashes and verifies credentials.
type Hasher interface {
	HashPassword(password string) (string, error)
	CheckPasswordHash(password, hash string) bool
}

// Service implements registration and login.
type Service struct {
	store  Store
	hasher Hasher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, hasher Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hasher: hasher, logger: logger, now: time.Now}
}

// Register creates a user. A second registration of the same email returns a
// Conflict error and leaves the first record untouched.
func (s *Service) Register(ctx context.Context, name, email, password string) error {
	if name == "" || email == "" || password == "" {
		return errcode.Validation("Missing fields")
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return errcode.Persistence("hash password", err)
	}

	err = s.store.Create(ctx, User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	switch {
	case errors.Is(err, ErrConflict):
		return errcode.Conflict("Email already exists")
	case err != nil:
		return errcode.Persistence("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("email", email))
	return nil
}

// Login verifies the credential and returns the profile.
func (s *Service) Login(ctx context.Context, email, password string) (Profile, error) {
	if email == "" || password == "" {
		return Profile{}, errcode.Validation("Missing fields")
	}

	u, err := s.lookup(ctx, email)
	if err != nil {
		return Profile{}, err
	}
	if !s.hasher.CheckPasswordHash(password, u.PasswordHash) {
		return Profile{}, errcode.Auth("Invalid password")
	}
	return toProfile(u), nil
}

// Profile returns a user's public profile.
func (s *Service) Profile(ctx context.Context, email string) (Profile, error) {
	if email == "" {
		return Profile{}, errcode.Validation("Missing fields")
	}
	u, err := s.lookup(ctx, email)
	if err != nil {
		return Profile{}, err
	}
	return toProfile(u), nil
}

func (s *Service) lookup(ctx context.Context, email string) (User, error) {
	u, err := s.store.Get(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return User{}, errcode.NotFound("User not found")
	case err != nil:
		return User{}, errcode.Persistence(fmt.Sprintf("get user %s", email), err)
	}
	return u, nil
}

func toProfile(u User) Profile {
	return Profile{Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}
