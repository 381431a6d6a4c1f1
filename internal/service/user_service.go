package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/iliyamo/admin-auth/internal/cache"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/utils"
)

// UserService is profile management for an already identified user. The
// caller's user id is always passed in explicitly.
type UserService struct {
	Deps
	opts Options
	log  *slog.Logger
}

// NewUserService wires profile management.
func NewUserService(deps Deps, opts Options) *UserService {
	deps = deps.withDefaults()
	return &UserService{Deps: deps, opts: opts.withDefaults(), log: deps.Logger.With("component", "users")}
}

// GetProfile reads through the session cache. A cache failure degrades to
// a repository read. The loaded projection is only cached when the user row
// is unchanged after loading, so a profile or activation change racing the
// read is not put back. A role change racing the read can still leave a
// stale entry until CacheTTL; claims come from the token either way.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*model.UserProjection, error) {
	var cached model.UserProjection
	hit, err := s.Cache.Get(ctx, cache.UserKey(userID), &cached)
	if err != nil {
		s.log.Warn("session cache get failed", "user_id", userID, "error", err)
	}
	if hit {
		return &cached, nil
	}

	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.project(ctx, u)
	if err != nil {
		return nil, Internal(err)
	}
	s.cacheIfUnchanged(ctx, u, p)
	return &p, nil
}

// cacheIfUnchanged caches p unless the row p was built from has been
// updated since it was read.
func (s *UserService) cacheIfUnchanged(ctx context.Context, loaded *model.User, p model.UserProjection) {
	current, err := s.Users.GetByID(ctx, loaded.ID)
	if err != nil {
		s.log.Warn("profile recheck failed", "user_id", loaded.ID, "error", err)
		return
	}
	if !current.UpdatedAt.Equal(loaded.UpdatedAt) || current.IsActive != loaded.IsActive {
		s.log.Debug("profile changed while loading, not caching", "user_id", loaded.ID)
		return
	}
	s.cacheProjection(ctx, p, s.opts.CacheTTL)
}

// UpdateProfile changes name and phone.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*model.UserProjection, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	if err := fromValidation(req.validate(s.opts.PhoneRegion)); err != nil {
		return nil, err
	}
	var phone string
	if req.Phone != "" {
		p, err := utils.NormalizePhone(req.Phone, s.opts.PhoneRegion)
		if err != nil {
			return nil, Validation(map[string]string{"phone": "must be a valid phone number"})
		}
		phone = p
	}

	err := s.Users.UpdateProfile(ctx, userID, req.FirstName, req.LastName, phone)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NotFound("user not found")
	case errors.Is(err, repository.ErrPhoneExists):
		return nil, Conflict("phone", "phone already registered")
	case err != nil:
		return nil, Internal(err)
	}
	s.invalidate(ctx, userID)

	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.project(ctx, u)
	if err != nil {
		return nil, Internal(err)
	}
	return &p, nil
}

// Deactivate disables the account and revokes all of its refresh tokens.
// Access tokens already issued stay valid until they expire.
func (s *UserService) Deactivate(ctx context.Context, userID, ip string) error {
	if err := s.setActive(ctx, userID, false); err != nil {
		return err
	}
	n, err := s.Tokens.RevokeAllByUserID(ctx, userID, ip)
	if err != nil {
		return Internal(err)
	}
	s.log.Info("user deactivated", "user_id", userID, "revoked", n)
	return nil
}

// Activate re-enables the account.
func (s *UserService) Activate(ctx context.Context, userID string) error {
	if err := s.setActive(ctx, userID, true); err != nil {
		return err
	}
	s.log.Info("user activated", "user_id", userID)
	return nil
}

// ChangePassword verifies the current password, stores the new one and
// revokes every refresh token of the user.
func (s *UserService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if err := fromValidation(req.validate()); err != nil {
		return err
	}
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.Hasher.Verify(req.CurrentPassword, u.PasswordHash) {
		return Validation(map[string]string{"current_password": "is incorrect"})
	}

	hash, err := s.Hasher.Hash(req.NewPassword)
	if err != nil {
		return Internal(err)
	}
	if err := s.Users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("user not found")
		}
		return Internal(err)
	}
	if _, err := s.Tokens.RevokeAllByUserID(ctx, userID, req.IP); err != nil {
		return Internal(err)
	}
	s.invalidate(ctx, userID)
	s.log.Info("password changed", "user_id", userID)
	return nil
}

func (s *UserService) setActive(ctx context.Context, userID string, active bool) error {
	err := s.Users.SetActive(ctx, userID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("user not found")
	}
	if err != nil {
		return Internal(err)
	}
	s.invalidate(ctx, userID)
	return nil
}
