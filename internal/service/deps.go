package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/admin-auth/internal/cache"
	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/config"
	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/utils"
)

// Deps are the collaborators shared by the services. Cache, Events, Clock
// and Logger may be left nil.
type Deps struct {
	Users  *repository.UserRepo
	Roles  *repository.RoleRepo
	Tokens *repository.TokenRepo
	Hasher *utils.PasswordHasher
	Issuer *utils.TokenIssuer
	Cache  cache.SessionCache
	Events EventPublisher
	Clock  clock.Clock
	Logger *slog.Logger
}

// Options are the tunables of the use cases.
type Options struct {
	RefreshTTL  time.Duration
	CacheTTL    time.Duration
	DefaultRole string // "" disables default role assignment
	PhoneRegion string
}

// OptionsFromConfig picks the use case settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		RefreshTTL:  cfg.Auth.RefreshTTL,
		CacheTTL:    cfg.Cache.TTL,
		DefaultRole: cfg.Auth.DefaultRole,
		PhoneRegion: cfg.Auth.PhoneRegion,
	}
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.Events == nil {
		d.Events = NopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return d
}

func (o Options) withDefaults() Options {
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 30 * 24 * time.Hour
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 15 * time.Minute
	}
	if o.PhoneRegion == "" {
		o.PhoneRegion = "US"
	}
	return o
}

// claimsFor loads the user's RBAC graph and resolves it.
func (d Deps) claimsFor(ctx context.Context, userID string) (roles, permissions []string, err error) {
	g, err := d.Users.LoadAccessGraph(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading access graph: %w", err)
	}
	roles, permissions = ResolveClaims(g)
	return roles, permissions, nil
}

// project builds u's projection with current claims.
func (d Deps) project(ctx context.Context, u *model.User) (model.UserProjection, error) {
	roles, perms, err := d.claimsFor(ctx, u.ID)
	if err != nil {
		return model.UserProjection{}, err
	}
	return u.Project(roles, perms), nil
}

// cacheProjection stores p. Failures are logged; the cache is advisory.
func (d Deps) cacheProjection(ctx context.Context, p model.UserProjection, ttl time.Duration) {
	if err := d.Cache.Set(ctx, cache.UserKey(p.ID), p, ttl); err != nil {
		d.Logger.Warn("session cache set failed", "user_id", p.ID, "error", err)
	}
}

// invalidate removes the cached projection of userID.
func (d Deps) invalidate(ctx context.Context, userID string) {
	if err := d.Cache.Remove(ctx, cache.UserKey(userID)); err != nil {
		d.Logger.Warn("session cache remove failed", "user_id", userID, "error", err)
	}
}

// publish sends ev, stamping the time. A failed publish is logged only.
func (d Deps) publish(ctx context.Context, ev model.AuthEvent) {
	ev.OccurredAt = d.Clock.Now()
	if err := d.Events.Publish(ctx, ev); err != nil {
		d.Logger.Warn("auth event publish failed", "type", ev.Type, "error", err)
	}
}

// getUser maps repository.ErrNotFound to a NotFound error.
func (d Deps) getUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := d.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("user not found")
	}
	if err != nil {
		return nil, Internal(err)
	}
	return u, nil
}
