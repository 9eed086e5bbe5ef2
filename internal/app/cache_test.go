package app

import (
	"context"
	"testing"
	"time"

	"github.com/proptly/billing-service/internal/domain"
)

func TestAnalyticsCache_ExpiresAfterTTL(t *testing.T) {
	cache := NewAnalyticsCache(5*time.Minute, 10)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	cache.Set("k", &domain.AnalyticsReport{GroupBy: domain.GroupByMonth})
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected a fresh entry to be served")
	}

	clock = clock.Add(4 * time.Minute)
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected entry to survive within the TTL")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected entry to expire after the TTL")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, len=%d", cache.Len())
	}
}

func TestAnalyticsCache_EvictsOldestWhenOverCapacity(t *testing.T) {
	cache := NewAnalyticsCache(time.Hour, 2)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	cache.Set("a", &domain.AnalyticsReport{})
	clock = clock.Add(time.Second)
	cache.Set("b", &domain.AnalyticsReport{})
	clock = clock.Add(time.Second)
	cache.Set("c", &domain.AnalyticsReport{})

	if cache.Len() != 2 {
		t.Fatalf("expected capacity bound of 2, len=%d", cache.Len())
	}
	if _, ok := cache.Get("a"); ok {
		t.Fatal("expected the oldest entry to be evicted")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatal("expected the newest entry to survive")
	}
}

func TestCacheKey_ScopesByIdentity(t *testing.T) {
	query := domain.AnalyticsQuery{GroupBy: domain.GroupByMonth}.Normalize()

	admin := domain.Identity{UserID: "user-1", Role: domain.RoleAdmin}
	tenant := domain.Identity{UserID: "user-1", Role: domain.RoleTenant}
	other := domain.Identity{UserID: "user-2", Role: domain.RoleAdmin}

	if CacheKey(admin, query) == CacheKey(tenant, query) {
		t.Fatal("expected different roles to map to different keys")
	}
	if CacheKey(admin, query) == CacheKey(other, query) {
		t.Fatal("expected different users to map to different keys")
	}
}

func TestCacheKey_CanonicalAcrossMetricOrder(t *testing.T) {
	ident := domain.Identity{UserID: "user-1", Role: domain.RoleManager}
	a := domain.AnalyticsQuery{Metrics: []string{domain.MetricPaymentCount, domain.MetricTotalCollected}}.Normalize()
	b := domain.AnalyticsQuery{Metrics: []string{domain.MetricTotalCollected, domain.MetricPaymentCount}}.Normalize()

	if CacheKey(ident, a) != CacheKey(ident, b) {
		t.Fatal("expected metric order not to affect the cache key")
	}
}

func TestAnalytics_ServesFromCacheWithinTTL(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(5*time.Minute, 10), "usd")
	ident := domain.Identity{UserID: "user-1", Role: domain.RoleManager}

	_, cached, err := svc.Analytics(context.Background(), ident, domain.AnalyticsQuery{}, false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cached {
		t.Fatal("expected a cold cache on the first request")
	}

	_, cached, err = svc.Analytics(context.Background(), ident, domain.AnalyticsQuery{}, false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !cached {
		t.Fatal("expected the second request to be served from cache")
	}
	if repo.analyticsCalls != 1 {
		t.Fatalf("expected a single aggregate computation, got %d", repo.analyticsCalls)
	}
}

func TestAnalytics_RefreshBypassesAndOverwritesCache(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(5*time.Minute, 10), "usd")
	ident := domain.Identity{UserID: "user-1", Role: domain.RoleManager}

	if _, _, err := svc.Analytics(context.Background(), ident, domain.AnalyticsQuery{}, false); err != nil {
		t.Fatalf("warm-up request: %v", err)
	}
	_, cached, err := svc.Analytics(context.Background(), ident, domain.AnalyticsQuery{}, true)
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	if cached {
		t.Fatal("expected refresh to bypass the cache")
	}
	if repo.analyticsCalls != 2 {
		t.Fatalf("expected refresh to recompute, got %d computations", repo.analyticsCalls)
	}
}

func TestAnalytics_RejectsInvalidQuery(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(5*time.Minute, 10), "usd")
	ident := domain.Identity{UserID: "user-1", Role: domain.RoleManager}

	_, _, err := svc.Analytics(context.Background(), ident, domain.AnalyticsQuery{GroupBy: "week"}, false)
	if err == nil {
		t.Fatal("expected an error for an unknown group_by")
	}
	if repo.analyticsCalls != 0 {
		t.Fatal("did not expect an aggregate computation for an invalid query")
	}
}

func TestInvalidateAnalytics_NonAdminClearsOwnScopeOnly(t *testing.T) {
	repo := newBillingRepoStub()
	cache := NewAnalyticsCache(5*time.Minute, 10)
	svc := NewService(repo, &providerStub{}, cache, "usd")

	manager := domain.Identity{UserID: "mgr-1", Role: domain.RoleManager}
	other := domain.Identity{UserID: "mgr-2", Role: domain.RoleManager}

	if _, _, err := svc.Analytics(context.Background(), manager, domain.AnalyticsQuery{}, false); err != nil {
		t.Fatalf("manager request: %v", err)
	}
	if _, _, err := svc.Analytics(context.Background(), other, domain.AnalyticsQuery{}, false); err != nil {
		t.Fatalf("other request: %v", err)
	}

	removed := svc.InvalidateAnalytics(manager)
	if removed != 1 {
		t.Fatalf("expected one entry cleared for the manager, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected the other identity's entry to survive, len=%d", cache.Len())
	}
}

func TestInvalidateAnalytics_AdminClearsEverything(t *testing.T) {
	repo := newBillingRepoStub()
	cache := NewAnalyticsCache(5*time.Minute, 10)
	svc := NewService(repo, &providerStub{}, cache, "usd")

	admin := domain.Identity{UserID: "adm-1", Role: domain.RoleAdmin}
	manager := domain.Identity{UserID: "mgr-1", Role: domain.RoleManager}

	if _, _, err := svc.Analytics(context.Background(), admin, domain.AnalyticsQuery{}, false); err != nil {
		t.Fatalf("admin request: %v", err)
	}
	if _, _, err := svc.Analytics(context.Background(), manager, domain.AnalyticsQuery{}, false); err != nil {
		t.Fatalf("manager request: %v", err)
	}

	removed := svc.InvalidateAnalytics(admin)
	if removed != 2 {
		t.Fatalf("expected the admin to clear all entries, got %d", removed)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected an empty cache, len=%d", cache.Len())
	}
}
