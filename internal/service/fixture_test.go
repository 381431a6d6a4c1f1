package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/cache"
	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/repository/repotest"
	"github.com/iliyamo/admin-auth/internal/utils"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Passw0rd!"
	accessTTL    = 30 * time.Minute
	refreshTTL   = 30 * 24 * time.Hour
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []model.AuthEvent
}

func (r *recorder) Publish(_ context.Context, ev model.AuthEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) ofType(typ model.AuthEventType) []model.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuthEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// mockCache lets tests assert exactly which keys were touched.
type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *mockCache) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type fixture struct {
	db     *sql.DB
	clk    *clock.Fixed
	users  *repository.UserRepo
	roles  *repository.RoleRepo
	tokens *repository.TokenRepo
	issuer *utils.TokenIssuer
	cache  cache.SessionCache
	events *recorder
	deps   Deps
	opts   Options

	auth     *AuthService
	profiles *UserService
	rbac     *RBACService
}

type fixtureOption func(*fixture)

func withCache(c cache.SessionCache) fixtureOption { return func(f *fixture) { f.cache = c } }

func withoutDefaultRole() fixtureOption { return func(f *fixture) { f.opts.DefaultRole = "" } }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := repotest.Open(t)
	clk := clock.NewFixed(start)

	issuer, err := utils.NewTokenIssuer(testSecret, "admin-auth", "admin-api", accessTTL, clk)
	require.NoError(t, err)

	f := &fixture{
		db:     db,
		clk:    clk,
		users:  repository.NewUserRepo(db, clk),
		roles:  repository.NewRoleRepo(db, clk),
		tokens: repository.NewTokenRepo(db, clk),
		issuer: issuer,
		cache:  cache.NewMemory(clk),
		events: &recorder{},
		opts: Options{
			RefreshTTL:  refreshTTL,
			CacheTTL:    15 * time.Minute,
			DefaultRole: "User",
			PhoneRegion: "US",
		},
	}
	for _, o := range opts {
		o(f)
	}

	f.deps = Deps{
		Users:  f.users,
		Roles:  f.roles,
		Tokens: f.tokens,
		Hasher: utils.NewPasswordHasher(1000),
		Issuer: issuer,
		Cache:  f.cache,
		Events: f.events,
		Clock:  clk,
	}
	f.auth = NewAuthService(f.deps, f.opts)
	f.profiles = NewUserService(f.deps, f.opts)
	f.rbac = NewRBACService(f.deps)

	require.NoError(t, f.roles.CreateRole(context.Background(), &model.Role{Name: "User", IsActive: true}))
	return f
}

func registerReq(email, device string) RegisterRequest {
	return RegisterRequest{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Ada",
		LastName:        "Lovelace",
		DeviceID:        device,
		IP:              "10.0.0.1",
		UserAgent:       "test-agent",
	}
}

func (f *fixture) register(t *testing.T, email, device string) *AuthResponse {
	t.Helper()
	resp, err := f.auth.Register(context.Background(), registerReq(email, device))
	require.NoError(t, err)
	return resp
}

func (f *fixture) login(t *testing.T, identifier, device string, remember bool) *AuthResponse {
	t.Helper()
	resp, err := f.auth.Login(context.Background(), LoginRequest{
		Identifier: identifier,
		Password:   testPassword,
		DeviceID:   device,
		RememberMe: remember,
		IP:         "10.0.0.2",
	})
	require.NoError(t, err)
	return resp
}

// tokenState loads a refresh token by raw value.
func (f *fixture) tokenState(t *testing.T, raw string) *model.RefreshToken {
	t.Helper()
	tok, err := f.tokens.GetByToken(context.Background(), raw)
	require.NoError(t, err)
	return tok
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}
