package cache

import (
	"context"
	"testing"
	"time"

	"cognical/internal/db"
	"cognical/internal/migrate"
	"cognical/internal/repo"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(repo.Repo{DB: conn}, time.Hour)
}

func TestSemanticHashNormalization(t *testing.T) {
	a := SemanticHash("  Plan My Day  ", nil)
	b := SemanticHash("plan my day", nil)
	if a != b {
		t.Fatalf("normalization not applied: %s vs %s", a, b)
	}
	c := SemanticHash("plan my day", map[string]any{"seed": 1})
	if a == c {
		t.Fatalf("metadata ignored in fingerprint")
	}
	d := SemanticHash("plan my day", map[string]any{"seed": 1})
	if c != d {
		t.Fatalf("fingerprint unstable across calls")
	}
}

func TestCacheKeySeparatesOperations(t *testing.T) {
	h := SemanticHash("same input", nil)
	if CacheKey(OpParse, h) == CacheKey(OpSchedule, h) {
		t.Fatalf("operations share a cache key")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h := SemanticHash("draft tomorrow", map[string]any{"seed": 7})

	if err := s.Put(ctx, OpSchedule, h, "draft tomorrow", `{"ok":true}`, PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, err := s.Get(ctx, OpSchedule, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e == nil {
		t.Fatalf("expected hit")
	}
	if e.ResponseJSON != `{"ok":true}` {
		t.Fatalf("wrong payload %q", e.ResponseJSON)
	}
	if e.HitCount != 1 {
		t.Fatalf("hit count = %d, want 1", e.HitCount)
	}
	e, err = s.Get(ctx, OpSchedule, h)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if e.HitCount != 2 {
		t.Fatalf("hit count = %d, want 2", e.HitCount)
	}
}

func TestGetMissesOtherOperation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h := SemanticHash("input", nil)
	if err := s.Put(ctx, OpParse, h, "input", `{}`, PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, err := s.Get(ctx, OpSchedule, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e != nil {
		t.Fatalf("hit across operations")
	}
}

func TestReplaceResetsHitCount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h := SemanticHash("x", nil)
	if err := s.Put(ctx, OpParse, h, "x", `1`, PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Get(ctx, OpParse, h); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := s.Put(ctx, OpParse, h, "x", `2`, PutOptions{}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	e, err := s.Get(ctx, OpParse, h)
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if e.ResponseJSON != `2` || e.HitCount != 1 {
		t.Fatalf("replace did not reset: payload=%q hits=%d", e.ResponseJSON, e.HitCount)
	}
}

func TestRewarmKeepsHitCount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h := SemanticHash("y", nil)
	if err := s.Put(ctx, OpParse, h, "y", `1`, PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Get(ctx, OpParse, h); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if err := s.Put(ctx, OpParse, h, "y", `2`, PutOptions{Rewarm: true}); err != nil {
		t.Fatalf("rewarm: %v", err)
	}
	e, err := s.Get(ctx, OpParse, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.HitCount != 4 {
		t.Fatalf("hit count = %d, want 4", e.HitCount)
	}
}

func TestExpiryAndPurge(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	h := SemanticHash("stale", nil)
	if err := s.Put(ctx, OpRecommend, h, "stale", `{}`, PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(2 * time.Hour)
	e, err := s.Get(ctx, OpRecommend, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e != nil {
		t.Fatalf("expired entry returned")
	}
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d entries, want 1", n)
	}
	left, err := s.Repo.CountCacheEntries(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if left != 0 {
		t.Fatalf("%d entries left after purge", left)
	}
}
