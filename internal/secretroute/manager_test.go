package secretroute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finpanel/report-service/internal/model"
)

func testManager(t *testing.T, store RouteStore) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(store, nil)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestGenerateThenValidate(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	route, err := m.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !PathPattern.MatchString(route.Path) {
		t.Errorf("generated path %q does not match the route format", route.Path)
	}
	if !m.Validate(ctx, route.Path) {
		t.Error("freshly generated path should validate")
	}
	if m.Validate(ctx, "/secret-aaaaaaaaaaaaaaaa-admin") {
		t.Error("mismatched path should not validate")
	}
}

func TestLazyExpiry(t *testing.T) {
	m, now := testManager(t, nil)
	ctx := context.Background()

	route, _ := m.Generate(ctx)

	*now = now.Add(TTL + time.Second)
	if m.Validate(ctx, route.Path) {
		t.Error("path should not validate after TTL elapsed")
	}
	if got := m.Remaining(ctx); got != 0 {
		t.Errorf("Remaining after expiry = %v, want 0", got)
	}
}

func TestExtend(t *testing.T) {
	m, now := testManager(t, nil)
	ctx := context.Background()

	route, _ := m.Generate(ctx)

	*now = now.Add(4 * time.Minute)
	if !m.Extend(ctx) {
		t.Fatal("Extend before expiry should succeed")
	}
	if got := m.Remaining(ctx); got != TTL {
		t.Errorf("Remaining after extend = %v, want %v", got, TTL)
	}
	if !m.Validate(ctx, route.Path) {
		t.Error("path should still validate after extend")
	}

	// Once expired, extend is a no-op.
	*now = now.Add(TTL + time.Second)
	if m.Extend(ctx) {
		t.Error("Extend after expiry should fail")
	}
}

func TestExtendWithoutRoute(t *testing.T) {
	m, _ := testManager(t, nil)
	if m.Extend(context.Background()) {
		t.Error("Extend with no active route should fail")
	}
}

func TestGenerateReplacesPriorRoute(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	first, _ := m.Generate(ctx)
	second, _ := m.Generate(ctx)

	if first.Path == second.Path {
		t.Fatal("consecutive routes should differ")
	}
	if m.Validate(ctx, first.Path) {
		t.Error("old path should be invalid after regeneration")
	}
	if !m.Validate(ctx, second.Path) {
		t.Error("new path should validate")
	}
}

func TestClear(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	route, _ := m.Generate(ctx)
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if m.Validate(ctx, route.Path) {
		t.Error("cleared route should not validate")
	}
	if got := m.Remaining(ctx); got != 0 {
		t.Errorf("Remaining after clear = %v, want 0", got)
	}
}

// failStore simulates unavailable persistent storage.
type failStore struct{}

func (failStore) SaveSecretRoute(context.Context, *model.SecretRoute) error { return errFail }
func (failStore) GetSecretRoute(context.Context) (*model.SecretRoute, error) {
	return nil, errFail
}
func (failStore) DeleteSecretRoute(context.Context) error { return errFail }

var errFail = errors.New("storage unavailable")

func TestDegradesToMemoryOnStorageFailure(t *testing.T) {
	m, _ := testManager(t, failStore{})
	ctx := context.Background()

	route, err := m.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate with failing store: %v", err)
	}
	if !m.Validate(ctx, route.Path) {
		t.Error("route should validate from memory when storage fails")
	}
}

func TestLoadsPersistedRoute(t *testing.T) {
	stored := &model.SecretRoute{
		Path:      "/secret-abcd1234efgh5678-admin",
		CreatedAt: time.Date(2026, 3, 14, 8, 58, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 3, 14, 9, 3, 0, 0, time.UTC),
	}
	m, _ := testManager(t, fixedStore{route: stored})

	if !m.Validate(context.Background(), stored.Path) {
		t.Error("route persisted by a prior process should validate")
	}
}

type fixedStore struct{ route *model.SecretRoute }

func (f fixedStore) SaveSecretRoute(context.Context, *model.SecretRoute) error { return nil }
func (f fixedStore) GetSecretRoute(context.Context) (*model.SecretRoute, error) {
	return f.route, nil
}
func (f fixedStore) DeleteSecretRoute(context.Context) error { return nil }
