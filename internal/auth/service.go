// Package auth handles account registration, credential checks and sessions.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"mobility/m/domain"
	"mobility/m/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingFields      = errors.New("username and password required")
	ErrUsernameTaken      = errors.New("username already exists")
)

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mobility-dummy-password"), bcrypt.DefaultCost)

// Exporter refreshes the database report after a write.
type Exporter interface {
	Refresh(ctx context.Context)
}

type Service struct {
	users    store.UserRepository
	exporter Exporter
}

func NewService(users store.UserRepository, exporter Exporter) *Service {
	return &Service{users: users, exporter: exporter}
}

// Register creates an account. Email is optional.
func (s *Service) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingFields
	}
	logCtx := logrus.WithField("username", username)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logCtx.WithError(err).Error("failed to hash password during registration")
		return nil, err
	}

	user := &domain.User{Username: username, Password: string(hashed)}
	if e := strings.TrimSpace(email); e != "" {
		user.Email = &e
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			logCtx.Warn("registration failed: username already exists")
			return nil, ErrUsernameTaken
		}
		logCtx.WithError(err).Error("database error during user creation")
		return nil, err
	}

	logCtx.WithField("user_id", user.ID).Info("user registered")
	s.exporter.Refresh(ctx)
	user.Password = ""
	return user, nil
}

// Login returns the user whose username and password both match.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.User, error) {
	logCtx := logrus.WithField("username", username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logCtx.WithError(err).Error("login failed: error finding user")
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		logCtx.Warn("login failed: user not found")
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		logCtx.Warn("login failed: invalid password")
		return nil, ErrInvalidCredentials
	}

	user.Password = ""
	return user, nil
}
