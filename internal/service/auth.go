package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/tienda/internal/hash"
	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/metrics"
	"github.com/Skotchmaster/tienda/internal/models"
	"github.com/Skotchmaster/tienda/internal/mykafka"
	"github.com/Skotchmaster/tienda/internal/repo"
	"github.com/Skotchmaster/tienda/internal/tokens"
)

// UserStore is the persistence SessionService needs. *repo.GormRepo implements it.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	AddUserRole(ctx context.Context, u *models.User, role *models.Role) error

	FindUserByRefreshToken(ctx context.Context, token string) (*models.User, *models.RefreshToken, error)
	FindActiveRefreshToken(ctx context.Context, userID uint, now time.Time) (*models.RefreshToken, error)
	AddRefreshToken(ctx context.Context, t *models.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, id uint, at time.Time) error
	RotateRefreshToken(ctx context.Context, old, next *models.RefreshToken, at time.Time) error
}

type RegisterInput struct {
	FirstName     string
	FatherSurname string
	MotherSurname string
	Email         string
	Username      string
	Password      string
}

type LoginInput struct {
	Username string
	Password string
}

type AddRoleInput struct {
	Username string
	Password string
	Role     string
}

// UserData is the outcome of Login and Refresh. It is returned on failure too,
// with Authenticated false and Message explaining why.
type UserData struct {
	Message                string    `json:"message,omitempty"`
	Authenticated          bool      `json:"authenticated"`
	Username               string    `json:"username,omitempty"`
	Email                  string    `json:"email,omitempty"`
	Roles                  []string  `json:"roles,omitempty"`
	Token                  string    `json:"token,omitempty"`
	RefreshToken           string    `json:"-"`
	RefreshTokenExpiration time.Time `json:"refresh_token_expiration"`
}

type SessionService struct {
	Store      UserStore
	Hasher     hash.Hasher
	Signer     *tokens.Signer
	RefreshTTL time.Duration
	Events     EventPublisher
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func NewSessionService(store UserStore, hasher hash.Hasher, signer *tokens.Signer, refreshTTL time.Duration) *SessionService {
	return &SessionService{
		Store:      store,
		Hasher:     hasher,
		Signer:     signer,
		RefreshTTL: refreshTTL,
	}
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (in RegisterInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Username) == "" {
		missing = append(missing, "username")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		missing = append(missing, "first_name")
	}
	if strings.TrimSpace(in.FatherSurname) == "" {
		missing = append(missing, "father_surname")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Register creates the account with the default role. The returned message is
// always set, including on failure.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (string, error) {
	l := logging.FromContext(ctx)
	username := strings.TrimSpace(in.Username)

	if err := in.validate(); err != nil {
		s.Metrics.Auth("register", "invalid")
		return err.Error(), err
	}

	_, err := s.Store.FindUserByUsername(ctx, username)
	switch {
	case err == nil:
		s.Metrics.Auth("register", "conflict")
		l.Info("register_conflict", "status", 409, "username", username)
		return fmt.Sprintf("user %s is already registered", username), ErrConflict
	case !errors.Is(err, repo.ErrNotFound):
		s.Metrics.Auth("register", "error")
		return "Error: " + err.Error(), storageErr("find user", err)
	}

	role, err := s.Store.FindRoleByName(ctx, models.DefaultRole)
	if err != nil {
		s.Metrics.Auth("register", "error")
		l.Error("register_failed", "reason", "default role missing", "error", err)
		return "Error: " + err.Error(), storageErr("find default role", err)
	}

	passwordHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		s.Metrics.Auth("register", "error")
		return "Error: " + err.Error(), fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:      username,
		Email:         strings.TrimSpace(in.Email),
		FirstName:     strings.TrimSpace(in.FirstName),
		FatherSurname: strings.TrimSpace(in.FatherSurname),
		MotherSurname: strings.TrimSpace(in.MotherSurname),
		PasswordHash:  passwordHash,
		Roles:         []models.Role{*role},
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			s.Metrics.Auth("register", "conflict")
			return fmt.Sprintf("user %s is already registered", username), ErrConflict
		}
		s.Metrics.Auth("register", "error")
		l.Error("register_failed", "reason", "persist user", "username", username, "error", err)
		return "Error: " + err.Error(), storageErr("create user", err)
	}

	s.Metrics.Auth("register", "success")
	l.Info("user_registered", "user_id", user.ID, "username", username)
	publish(ctx, s.Events, s.Metrics, mykafka.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10), Event{
		Type: "user_registered",
		Data: map[string]any{"user_id": user.ID, "username": user.Username, "roles": user.RoleNames()},
	})
	return fmt.Sprintf("user %s registered successfully", username), nil
}

// Login verifies the password and returns an access token together with the
// user's active refresh token, creating one when none is active.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*UserData, error) {
	l := logging.FromContext(ctx)

	user, err := s.Store.FindUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.Metrics.Auth("login", "unknown_user")
			l.Warn("login_failed", "status", 401, "reason", "unknown user")
			return &UserData{Message: fmt.Sprintf("no user exists with username %s.", in.Username)}, ErrNotFound
		}
		s.Metrics.Auth("login", "error")
		return &UserData{Message: "Error: " + err.Error()}, storageErr("find user", err)
	}

	if s.Hasher.Verify(user.PasswordHash, in.Password) != hash.VerifySuccess {
		s.Metrics.Auth("login", "bad_password")
		l.Warn("login_failed", "status", 401, "reason", "bad password", "user_id", user.ID)
		return &UserData{Message: fmt.Sprintf("incorrect credentials for user %s.", user.Username)}, ErrInvalidCredentials
	}

	now := s.now()
	refresh, err := s.Store.FindActiveRefreshToken(ctx, user.ID, now)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		refresh, err = tokens.NewRefreshToken(user.ID, now, s.RefreshTTL)
		if err != nil {
			return &UserData{Message: "Error: " + err.Error()}, err
		}
		if err := s.Store.AddRefreshToken(ctx, refresh); err != nil {
			s.Metrics.Auth("login", "error")
			return &UserData{Message: "Error: " + err.Error()}, storageErr("add refresh token", err)
		}
		s.Metrics.TokenIssued("refresh")
	case err != nil:
		s.Metrics.Auth("login", "error")
		return &UserData{Message: "Error: " + err.Error()}, storageErr("find active refresh token", err)
	}

	data, err := s.authenticated(user, refresh)
	if err != nil {
		return data, err
	}

	s.Metrics.Auth("login", "success")
	l.Info("login_succeeded", "user_id", user.ID)
	publish(ctx, s.Events, s.Metrics, mykafka.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10), Event{
		Type: "user_logged_in",
		Data: map[string]any{"user_id": user.ID, "username": user.Username},
	})
	return data, nil
}

// Refresh exchanges an active refresh token for a successor and a new access
// token. A token can be exchanged at most once.
func (s *SessionService) Refresh(ctx context.Context, token string) (*UserData, error) {
	l := logging.FromContext(ctx)

	if token == "" {
		s.Metrics.Auth("refresh", "unknown_token")
		return &UserData{Message: "refresh token is required"}, ErrNotFound
	}

	user, stored, err := s.Store.FindUserByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.Metrics.Auth("refresh", "unknown_token")
			l.Warn("refresh_failed", "status", 401, "reason", "unknown token")
			return &UserData{Message: "refresh token is not assigned to any user"}, ErrNotFound
		}
		s.Metrics.Auth("refresh", "error")
		return &UserData{Message: "Error: " + err.Error()}, storageErr("find refresh token", err)
	}

	now := s.now()
	if !stored.IsActive(now) {
		s.Metrics.Auth("refresh", "inactive_token")
		l.Warn("refresh_failed", "status", 401, "reason", "inactive token", "user_id", user.ID, "revoked", stored.IsRevoked())
		return &UserData{Message: "refresh token is not active"}, ErrInvalidToken
	}

	next, err := tokens.NewRefreshToken(user.ID, now, s.RefreshTTL)
	if err != nil {
		return &UserData{Message: "Error: " + err.Error()}, err
	}
	if err := s.Store.RotateRefreshToken(ctx, stored, next, now); err != nil {
		if errors.Is(err, repo.ErrTokenNotActive) {
			s.Metrics.Auth("refresh", "inactive_token")
			l.Warn("refresh_failed", "status", 401, "reason", "lost rotation", "user_id", user.ID)
			return &UserData{Message: "refresh token is not active"}, ErrInvalidToken
		}
		s.Metrics.Auth("refresh", "error")
		return &UserData{Message: "Error: " + err.Error()}, storageErr("rotate refresh token", err)
	}
	s.Metrics.TokenIssued("refresh")

	data, err := s.authenticated(user, next)
	if err != nil {
		return data, err
	}

	s.Metrics.Auth("refresh", "success")
	l.Info("refresh_rotated", "user_id", user.ID, "previous_id", stored.ID, "token_id", next.ID)
	publish(ctx, s.Events, s.Metrics, mykafka.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10), Event{
		Type: "refresh_token_rotated",
		Data: map[string]any{"user_id": user.ID, "previous_id": stored.ID, "token_id": next.ID},
	})
	return data, nil
}

// Logout revokes the token. Unknown or already inactive tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	user, stored, err := s.Store.FindUserByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return storageErr("find refresh token", err)
	}
	if !stored.IsActive(s.now()) {
		return nil
	}

	if err := s.Store.RevokeRefreshToken(ctx, stored.ID, s.now()); err != nil {
		if errors.Is(err, repo.ErrTokenNotActive) {
			return nil
		}
		s.Metrics.Auth("logout", "error")
		return storageErr("revoke refresh token", err)
	}

	s.Metrics.Auth("logout", "success")
	logging.FromContext(ctx).Info("logout", "user_id", user.ID, "token_id", stored.ID)
	publish(ctx, s.Events, s.Metrics, mykafka.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10), Event{
		Type: "refresh_token_revoked",
		Data: map[string]any{"user_id": user.ID, "token_id": stored.ID},
	})
	return nil
}

// AddRole grants a role after checking the password again. Granting a role
// the user already holds succeeds without writing.
func (s *SessionService) AddRole(ctx context.Context, in AddRoleInput) (string, error) {
	l := logging.FromContext(ctx)

	user, err := s.Store.FindUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.Metrics.Auth("add_role", "unknown_user")
			return fmt.Sprintf("no user exists with username %s.", in.Username), ErrNotFound
		}
		s.Metrics.Auth("add_role", "error")
		return "Error: " + err.Error(), storageErr("find user", err)
	}

	if s.Hasher.Verify(user.PasswordHash, in.Password) != hash.VerifySuccess {
		s.Metrics.Auth("add_role", "bad_password")
		l.Warn("add_role_failed", "status", 401, "reason", "bad password", "user_id", user.ID)
		return fmt.Sprintf("incorrect credentials for user %s.", user.Username), ErrInvalidCredentials
	}

	role, err := s.Store.FindRoleByName(ctx, in.Role)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.Metrics.Auth("add_role", "unknown_role")
			return fmt.Sprintf("role %s is not defined.", in.Role), ErrNotFound
		}
		s.Metrics.Auth("add_role", "error")
		return "Error: " + err.Error(), storageErr("find role", err)
	}

	for _, held := range user.Roles {
		if strings.EqualFold(held.Name, role.Name) {
			s.Metrics.Auth("add_role", "noop")
			return fmt.Sprintf("user %s already has role %s.", user.Username, role.Name), nil
		}
	}

	if err := s.Store.AddUserRole(ctx, user, role); err != nil {
		s.Metrics.Auth("add_role", "error")
		return "Error: " + err.Error(), storageErr("add role", err)
	}

	s.Metrics.Auth("add_role", "success")
	l.Info("role_granted", "user_id", user.ID, "role", role.Name)
	publish(ctx, s.Events, s.Metrics, mykafka.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10), Event{
		Type: "role_granted",
		Data: map[string]any{"user_id": user.ID, "role": role.Name},
	})
	return fmt.Sprintf("role %s added to user %s.", role.Name, user.Username), nil
}

func (s *SessionService) authenticated(user *models.User, refresh *models.RefreshToken) (*UserData, error) {
	roles := user.RoleNames()
	access, err := s.Signer.Issue(tokens.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    roles,
	})
	if err != nil {
		return &UserData{Message: "Error: " + err.Error()}, fmt.Errorf("issue access token: %w", err)
	}
	s.Metrics.TokenIssued("access")

	return &UserData{
		Authenticated:          true,
		Username:               user.Username,
		Email:                  user.Email,
		Roles:                  roles,
		Token:                  access.Token,
		RefreshToken:           refresh.Token,
		RefreshTokenExpiration: refresh.ExpiresAt,
	}, nil
}
