package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/utils"
)

// AuthResponse is returned by Login, Register and Refresh. The refresh
// token value appears here and nowhere else.
type AuthResponse struct {
	AccessToken      string               `json:"access_token"`
	ExpiresAt        time.Time            `json:"expires_at"`
	RefreshToken     string               `json:"refresh_token"`
	RefreshExpiresAt time.Time            `json:"refresh_expires_at"`
	User             model.UserProjection `json:"user"`
}

// AuthService runs the login, registration, refresh and logout use cases.
// It keeps no per-request state and is safe for concurrent use.
type AuthService struct {
	Deps
	opts Options
	log  *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the use cases. Users, Roles, Tokens, Hasher and
// Issuer are required.
func NewAuthService(deps Deps, opts Options) *AuthService {
	deps = deps.withDefaults()
	return &AuthService{
		Deps: deps,
		opts: opts.withDefaults(),
		log:  deps.Logger.With("component", "auth"),
	}
}

// Login authenticates by email or phone and opens a session on the device.
// Every credential failure returns the same Unauthorized error.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := fromValidation(req.validate()); err != nil {
		return nil, err
	}

	u, err := s.lookupIdentifier(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	if u == nil {
		// burn the same PBKDF2 work as a real comparison
		s.Hasher.Verify(req.Password, s.dummy())
		return nil, s.loginFailed(ctx, req, "", "user_not_found")
	}
	if !s.Hasher.Verify(req.Password, u.PasswordHash) {
		return nil, s.loginFailed(ctx, req, u.ID, "bad_password")
	}
	if !u.IsActive {
		return nil, s.loginFailed(ctx, req, u.ID, "inactive")
	}

	if err := s.Users.UpdateLastLogin(ctx, u.ID); err != nil {
		return nil, Internal(err)
	}
	now := s.Clock.Now().Truncate(time.Second)
	u.LastLoginAt = &now

	if !req.RememberMe {
		n, err := s.Tokens.RevokeByDeviceID(ctx, u.ID, req.DeviceID, req.IP)
		if err != nil {
			return nil, Internal(err)
		}
		if n > 0 {
			s.log.Debug("superseded device sessions", "user_id", u.ID, "device_id", req.DeviceID, "revoked", n)
		}
	}

	resp, err := s.openSession(ctx, u, &model.RefreshToken{
		DeviceID:    req.DeviceID,
		DeviceName:  req.DeviceName,
		UserAgent:   req.UserAgent,
		CreatedByIP: req.IP,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("login succeeded", "user_id", u.ID, "device_id", req.DeviceID, "remember_me", req.RememberMe)
	s.publish(ctx, model.AuthEvent{
		Type: model.EventLoggedIn, UserID: u.ID, DeviceID: req.DeviceID, IP: req.IP, UserAgent: req.UserAgent,
	})
	return resp, nil
}

// Register creates an account, assigns the default role when it exists and
// opens a session. Unlike Login it names the field that collided.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Email, req.Phone = strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone)
	if err := fromValidation(req.validate(s.opts.PhoneRegion)); err != nil {
		return nil, err
	}

	email := utils.NormalizeEmail(req.Email)
	var phone string
	if req.Phone != "" {
		p, err := utils.NormalizePhone(req.Phone, s.opts.PhoneRegion)
		if err != nil {
			return nil, Validation(map[string]string{"phone": "must be a valid phone number"})
		}
		phone = p
	}

	taken, err := s.Users.EmailExists(ctx, email)
	if err != nil {
		return nil, Internal(err)
	}
	if taken {
		return nil, Conflict("email", "email already registered")
	}
	if phone != "" {
		taken, err = s.Users.PhoneExists(ctx, phone)
		if err != nil {
			return nil, Internal(err)
		}
		if taken {
			return nil, Conflict("phone", "phone already registered")
		}
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, Internal(err)
	}
	u := &model.User{
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
	}
	roleIDs, err := s.defaultRoleIDs(ctx)
	if err != nil {
		return nil, Internal(err)
	}
	switch err := s.Users.Create(ctx, u, roleIDs...); {
	case errors.Is(err, repository.ErrEmailExists):
		return nil, Conflict("email", "email already registered")
	case errors.Is(err, repository.ErrPhoneExists):
		return nil, Conflict("phone", "phone already registered")
	case err != nil:
		return nil, Internal(err)
	}

	resp, err := s.openSession(ctx, u, &model.RefreshToken{
		DeviceID:    req.DeviceID,
		DeviceName:  req.DeviceName,
		UserAgent:   req.UserAgent,
		CreatedByIP: req.IP,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", "user_id", u.ID, "device_id", req.DeviceID)
	s.publish(ctx, model.AuthEvent{
		Type: model.EventRegistered, UserID: u.ID, DeviceID: req.DeviceID, IP: req.IP, UserAgent: req.UserAgent,
	})
	return resp, nil
}

// Refresh rotates a refresh token bound to req.DeviceID and issues a new
// access token carrying the user's current roles and permissions. Of two
// concurrent refreshes with the same token, one fails with Unauthorized.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	if err := fromValidation(req.validate()); err != nil {
		return nil, err
	}

	old, err := s.Tokens.GetByToken(ctx, req.RefreshToken)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.refreshFailed(req, "", "token_not_found")
	}
	if err != nil {
		return nil, Internal(err)
	}
	if !old.IsActive(s.Clock.Now()) {
		return nil, s.refreshFailed(req, old.UserID, "token_inactive")
	}
	if old.DeviceID != req.DeviceID {
		return nil, s.refreshFailed(req, old.UserID, "device_mismatch")
	}

	u, err := s.Users.GetByID(ctx, old.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.refreshFailed(req, old.UserID, "user_missing")
	}
	if err != nil {
		return nil, Internal(err)
	}
	if !u.IsActive {
		return nil, s.refreshFailed(req, u.ID, "inactive")
	}

	projection, err := s.project(ctx, u)
	if err != nil {
		return nil, Internal(err)
	}
	access, accessExp, err := s.Issuer.IssueAccessToken(u.ID, u.Email, projection.Roles, projection.Permissions)
	if err != nil {
		return nil, Internal(err)
	}

	raw, err := utils.IssueRefreshToken()
	if err != nil {
		return nil, Internal(err)
	}
	next := &model.RefreshToken{
		Token:       raw,
		UserID:      u.ID,
		DeviceID:    old.DeviceID,
		DeviceName:  old.DeviceName,
		UserAgent:   old.UserAgent,
		CreatedByIP: req.IP,
		ExpiresAt:   s.Clock.Now().Add(s.opts.RefreshTTL),
	}
	if err := s.Tokens.Rotate(ctx, req.RefreshToken, next, req.IP); err != nil {
		if errors.Is(err, repository.ErrTokenNotActive) {
			return nil, s.refreshFailed(req, u.ID, "rotated_concurrently")
		}
		return nil, Internal(err)
	}

	s.cacheProjection(ctx, projection, s.opts.CacheTTL)
	s.log.Info("token refreshed", "user_id", u.ID, "device_id", req.DeviceID)
	s.publish(ctx, model.AuthEvent{Type: model.EventTokenRefreshed, UserID: u.ID, DeviceID: req.DeviceID, IP: req.IP})

	return &AuthResponse{
		AccessToken:      access,
		ExpiresAt:        accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
		User:             projection,
	}, nil
}

// Logout revokes one refresh token. An unknown or already inactive token is
// not an error.
func (s *AuthService) Logout(ctx context.Context, req LogoutRequest) error {
	if err := fromValidation(req.validate()); err != nil {
		return err
	}

	t, err := s.Tokens.GetByToken(ctx, req.RefreshToken)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return Internal(err)
	}
	if !t.IsActive(s.Clock.Now()) {
		return nil
	}
	if err := s.Tokens.Revoke(ctx, req.RefreshToken, req.IP); err != nil {
		return Internal(err)
	}

	s.log.Info("logged out", "user_id", t.UserID, "device_id", t.DeviceID)
	s.publish(ctx, model.AuthEvent{Type: model.EventLoggedOut, UserID: t.UserID, DeviceID: t.DeviceID, IP: req.IP})
	return nil
}

// LogoutAllDevices revokes every active token of the owner of the given
// token and drops the owner's cached projection. A token that is unknown or
// no longer active resolves to no one, and nothing happens.
func (s *AuthService) LogoutAllDevices(ctx context.Context, req LogoutRequest) error {
	if err := fromValidation(req.validate()); err != nil {
		return err
	}

	t, err := s.Tokens.GetByToken(ctx, req.RefreshToken)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return Internal(err)
	}
	if !t.IsActive(s.Clock.Now()) {
		return nil
	}

	n, err := s.Tokens.RevokeAllByUserID(ctx, t.UserID, req.IP)
	if err != nil {
		return Internal(err)
	}
	s.invalidate(ctx, t.UserID)

	s.log.Info("logged out everywhere", "user_id", t.UserID, "revoked", n)
	s.publish(ctx, model.AuthEvent{Type: model.EventLoggedOutAll, UserID: t.UserID, DeviceID: t.DeviceID, IP: req.IP})
	return nil
}

// ValidateToken reports whether an access token verifies. It has no side
// effects.
func (s *AuthService) ValidateToken(token string) bool {
	return s.Issuer.Validate(token)
}

// ListSessions returns the user's active sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	tokens, err := s.Tokens.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, Internal(err)
	}
	sessions := make([]model.Session, 0, len(tokens))
	for i := range tokens {
		sessions = append(sessions, tokens[i].AsSession())
	}
	return sessions, nil
}

// openSession issues an access token and a new refresh token for u, stores
// the refresh token with the device metadata in tmpl and caches the
// projection.
func (s *AuthService) openSession(ctx context.Context, u *model.User, tmpl *model.RefreshToken) (*AuthResponse, error) {
	projection, err := s.project(ctx, u)
	if err != nil {
		return nil, Internal(err)
	}
	access, accessExp, err := s.Issuer.IssueAccessToken(u.ID, u.Email, projection.Roles, projection.Permissions)
	if err != nil {
		return nil, Internal(err)
	}
	raw, err := utils.IssueRefreshToken()
	if err != nil {
		return nil, Internal(err)
	}

	tmpl.Token = raw
	tmpl.UserID = u.ID
	tmpl.ExpiresAt = s.Clock.Now().Add(s.opts.RefreshTTL)
	if err := s.Tokens.Create(ctx, tmpl); err != nil {
		return nil, Internal(err)
	}

	s.cacheProjection(ctx, projection, s.opts.CacheTTL)
	return &AuthResponse{
		AccessToken:      access,
		ExpiresAt:        accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: tmpl.ExpiresAt,
		User:             projection,
	}, nil
}

// lookupIdentifier returns nil, nil when no account matches.
func (s *AuthService) lookupIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	var (
		u   *model.User
		err error
	)
	if utils.LooksLikeEmail(identifier) {
		u, err = s.Users.GetByEmail(ctx, utils.NormalizeEmail(identifier))
	} else {
		phone, perr := utils.NormalizePhone(identifier, s.opts.PhoneRegion)
		if perr != nil {
			return nil, nil
		}
		u, err = s.Users.GetByPhone(ctx, phone)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Internal(err)
	}
	return u, nil
}

// defaultRoleIDs resolves the role every new account starts with. A role
// that is not configured or does not exist yields none.
func (s *AuthService) defaultRoleIDs(ctx context.Context) ([]string, error) {
	if s.opts.DefaultRole == "" {
		return nil, nil
	}
	role, err := s.Roles.GetRoleByName(ctx, s.opts.DefaultRole)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Debug("default role not configured", "role", s.opts.DefaultRole)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving default role: %w", err)
	}
	return []string{role.ID}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, req LoginRequest, userID, reason string) error {
	s.log.Info("login failed", "reason", reason, "user_id", userID, "device_id", req.DeviceID, "ip", req.IP)
	s.publish(ctx, model.AuthEvent{
		Type: model.EventLoginFailed, UserID: userID, DeviceID: req.DeviceID,
		IP: req.IP, UserAgent: req.UserAgent, Reason: reason,
	})
	return Unauthorized(MsgInvalidCredentials)
}

func (s *AuthService) refreshFailed(req RefreshRequest, userID, reason string) error {
	s.log.Warn("refresh rejected", "reason", reason, "user_id", userID, "device_id", req.DeviceID, "ip", req.IP)
	return Unauthorized(MsgInvalidRefreshToken)
}

// dummy is a hash of nothing in particular, compared against when the
// identifier matched no account.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.Hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
