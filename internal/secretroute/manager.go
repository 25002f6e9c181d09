// Package secretroute mints and validates the time-boxed admin access path.
//
// At most one route is active at a time. Expiry is lazy: nothing deletes an
// expired record eagerly, but every read treats it as absent. The consuming
// UI polls the remaining time and redirects away once it reaches zero.
package secretroute

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/finpanel/report-service/internal/model"
)

// TTL is the validity window of a freshly generated or extended route.
const TTL = 5 * time.Minute

const (
	pathPrefix  = "/secret-"
	pathSuffix  = "-admin"
	tokenLength = 16
	tokenChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// PathPattern matches well-formed secret route paths.
var PathPattern = regexp.MustCompile(`^/secret-[a-zA-Z0-9]{16}-admin$`)

// RouteStore persists the single active route across restarts.
type RouteStore interface {
	SaveSecretRoute(ctx context.Context, route *model.SecretRoute) error
	GetSecretRoute(ctx context.Context) (*model.SecretRoute, error)
	DeleteSecretRoute(ctx context.Context) error
}

// Manager owns the active secret route. The in-memory copy is
// authoritative; the store is written best-effort so the route survives a
// restart, and storage failures degrade to memory-only operation with a
// logged warning instead of failing the caller.
type Manager struct {
	store  RouteStore
	logger *slog.Logger

	mu      sync.Mutex
	current *model.SecretRoute
	loaded  bool

	now func() time.Time
}

// NewManager creates a Manager. store may be nil for memory-only operation.
func NewManager(store RouteStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Generate mints a new route, replacing any prior one regardless of its
// state, and returns a copy of the stored record.
func (m *Manager) Generate(ctx context.Context) (model.SecretRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	route := &model.SecretRoute{
		Path:      pathPrefix + randomToken() + pathSuffix,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
	m.current = route
	m.loaded = true

	if m.store != nil {
		if err := m.store.SaveSecretRoute(ctx, route); err != nil {
			m.logger.Warn("secret route not persisted, continuing in memory", "error", err)
		}
	}
	return *route, nil
}

// Validate reports whether path matches the currently active, unexpired
// route. Absent, expired, and mismatched paths all fail identically.
func (m *Manager) Validate(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	route := m.active(ctx)
	if route == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(route.Path), []byte(path)) == 1
}

// Extend pushes the expiry forward by another TTL from now. Returns false
// without effect when no route is active.
func (m *Manager) Extend(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	route := m.active(ctx)
	if route == nil {
		return false
	}
	route.ExpiresAt = m.now().UTC().Add(TTL)

	if m.store != nil {
		if err := m.store.SaveSecretRoute(ctx, route); err != nil {
			m.logger.Warn("secret route extension not persisted", "error", err)
		}
	}
	return true
}

// Remaining returns the time until the active route expires, or zero when
// absent or expired.
func (m *Manager) Remaining(ctx context.Context) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	route := m.active(ctx)
	if route == nil {
		return 0
	}
	return route.ExpiresAt.Sub(m.now())
}

// Clear drops the active route from memory and storage.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	m.loaded = true
	if m.store != nil {
		if err := m.store.DeleteSecretRoute(ctx); err != nil {
			m.logger.Warn("secret route not cleared from storage", "error", err)
			return err
		}
	}
	return nil
}

// active returns the current unexpired route, loading from storage once on
// first use. Caller holds m.mu.
func (m *Manager) active(ctx context.Context) *model.SecretRoute {
	if !m.loaded {
		m.loaded = true
		if m.store != nil {
			route, err := m.store.GetSecretRoute(ctx)
			if err != nil {
				m.logger.Warn("secret route not loaded from storage", "error", err)
			} else {
				m.current = route
			}
		}
	}
	if m.current == nil {
		return nil
	}
	if !m.now().Before(m.current.ExpiresAt) {
		return nil
	}
	return m.current
}

func randomToken() string {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		panic("secretroute: crypto/rand unavailable: " + err.Error())
	}
	for i := range b {
		b[i] = tokenChars[int(b[i])%len(tokenChars)]
	}
	return string(b)
}
