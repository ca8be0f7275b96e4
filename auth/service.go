package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"stresstest-server/entities"
	"stresstest-server/repositories"
)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	Success   bool      `json:"success"`
}

// Service authenticates operators against the user store.
type Service struct {
	users  repositories.UserRepository
	issuer *Issuer
}

func NewService(users repositories.UserRepository, issuer *Issuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Login checks the credentials and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if s.issuer == nil {
		return nil, errors.New("local token issuing is disabled")
	}
	id := Identity{UserID: user.ID, Username: user.Username}
	token, exp, err := s.issuer.Issue(id)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, UserID: id.UserID, Username: id.Username, ExpiresAt: exp, Success: true}, nil
}

// EnsureUser creates the user if the username is not taken yet.
func (s *Service) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, errors.New("username and password are required")
	}
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return false, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	if err := s.users.Create(ctx, &entities.User{Username: username, PasswordHash: hash}); err != nil {
		return false, err
	}
	return true, nil
}
