package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/auth"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/rbac"
	"github.com/tsiken/backend/internal/session"
	"go.uber.org/zap"
)

// accountBook is an in-memory AccountChecker. Tokens minted by token()
// register their user with the role they claim.
type accountBook struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.AccountStatus
	err      error
}

var book = &accountBook{accounts: map[uuid.UUID]*models.AccountStatus{}}

func (b *accountBook) CurrentAccount(ctx context.Context, id uuid.UUID) (*models.AccountStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	st, ok := b.accounts[id]
	if !ok {
		return nil, apperr.Unauthorized("account no longer exists")
	}
	cp := *st
	return &cp, nil
}

func (b *accountBook) set(id uuid.UUID, st *models.AccountStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st == nil {
		delete(b.accounts, id)
		return
	}
	b.accounts[id] = st
}

func setup(t *testing.T) (*fiber.App, *session.Store, *config.Config) {
	t.Helper()
	return setupWithLimit(t, 3)
}

func setupWithLimit(t *testing.T, limit int) (*fiber.App, *session.Store, *config.Config) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{JWTSecret: "mw-secret"}
	sessions := session.NewStore(rdb, 24*time.Hour, zap.NewNop())
	log := zap.NewNop()

	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Use(RateLimitMiddleware(rdb, limit, time.Minute))
	protected := app.Group("", AuthMiddleware(cfg, book, log))
	protected.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(GetIdentity(c).Email)
	})
	protected.Get("/admin", RequirePermission(sessions, rbac.PermViewAllLogs, log), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app, sessions, cfg
}

func token(t *testing.T, cfg *config.Config, email, role string) string {
	bearer, _ := tokenFor(t, cfg, email, role)
	return bearer
}

func tokenFor(t *testing.T, cfg *config.Config, email, role string) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	book.set(id, &models.AccountStatus{Role: role})
	tok, err := auth.GenerateJWT(cfg.JWTSecret, id, email, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok, id
}

func TestAuthMiddleware(t *testing.T) {
	app, _, cfg := setup(t)

	req := httptest.NewRequest("GET", "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", token(t, cfg, "juan@tsiken.ph", "user"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequirePermissionNeedsAdminSession(t *testing.T) {
	app, sessions, cfg := setup(t)

	call := func(bearer, device string) int {
		req := httptest.NewRequest("GET", "/admin", nil)
		req.Header.Set("Authorization", bearer)
		if device != "" {
			req.Header.Set(HeaderDeviceID, device)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusForbidden, call(token(t, cfg, "juan@tsiken.ph", "user"), "dev-1"))

	admin := token(t, cfg, "ana@tsiken.ph", "admin")
	assert.Equal(t, fiber.StatusForbidden, call(admin, "dev-1"), "no session yet")

	require.NoError(t, sessions.Create(context.Background(), "dev-1", "ana@tsiken.ph", "admin"))
	assert.Equal(t, fiber.StatusOK, call(admin, "dev-1"))
}

func TestAuthMiddlewareUsesStoredAccount(t *testing.T) {
	app, sessions, cfg := setupWithLimit(t, 100)
	ctx := context.Background()

	call := func(path, bearer string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", bearer)
		req.Header.Set(HeaderDeviceID, "dev-9")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	admin, id := tokenFor(t, cfg, "ben@tsiken.ph", models.RoleAdmin)
	require.NoError(t, sessions.Create(ctx, "dev-9", "ben@tsiken.ph", models.RoleAdmin))
	require.Equal(t, fiber.StatusOK, call("/admin", admin))

	// demoted: the token still says admin
	book.set(id, &models.AccountStatus{Role: models.RoleUser})
	assert.Equal(t, fiber.StatusForbidden, call("/admin", admin))
	assert.Equal(t, fiber.StatusOK, call("/me", admin))

	book.set(id, &models.AccountStatus{Role: models.RoleAdmin, Locked: true})
	assert.Equal(t, fiber.StatusForbidden, call("/me", admin))

	book.set(id, nil)
	assert.Equal(t, fiber.StatusUnauthorized, call("/me", admin))
}

func TestAuthMiddlewareStoreDown(t *testing.T) {
	app, _, cfg := setup(t)
	bearer := token(t, cfg, "juan@tsiken.ph", models.RoleUser)

	book.mu.Lock()
	book.err = errors.New("connection refused")
	book.mu.Unlock()
	t.Cleanup(func() {
		book.mu.Lock()
		book.err = nil
		book.mu.Unlock()
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", bearer)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	app, _, _ := setup(t)

	var last int
	for i := 0; i < 4; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
		require.NoError(t, err)
		last = resp.StatusCode
	}
	assert.Equal(t, fiber.StatusTooManyRequests, last)
}

func TestRequestIDPropagation(t *testing.T) {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"well formed", "mobile-7f3a.1", true},
		{"injection", "abc\" onload=x", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			got := resp.Header.Get(HeaderRequestID)
			require.NotEmpty(t, got)
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
			}
		})
	}
}
