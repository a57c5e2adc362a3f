package behavior

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/db"
	"cognical/internal/domain"
	"cognical/internal/migrate"
	"cognical/internal/repo"
)

func newTestLearner(t *testing.T) *Learner {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := New(repo.Repo{DB: conn})
	l.Now = func() time.Time { return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) }
	return l
}

func event(day string, startHM, endHM string, completed bool, slipMinutes int) domain.FeedbackEvent {
	plannedStart := fmt.Sprintf("%sT%s:00Z", day, startHM)
	plannedEnd := fmt.Sprintf("%sT%s:00Z", day, endHM)
	e := domain.FeedbackEvent{PlannedStart: plannedStart, PlannedEnd: plannedEnd, Completed: completed}
	if slipMinutes >= 0 {
		ps, _ := time.Parse(time.RFC3339, plannedStart)
		pe, _ := time.Parse(time.RFC3339, plannedEnd)
		as := ps.Add(time.Duration(slipMinutes) * time.Minute).Format(time.RFC3339)
		ae := pe.Add(time.Duration(slipMinutes) * time.Minute).Format(time.RFC3339)
		e.ActualStart = &as
		e.ActualEnd = &ae
	}
	return e
}

func TestLoadDefaultSnapshot(t *testing.T) {
	l := newTestLearner(t)
	snap, err := l.Load(context.Background(), "default")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.FocusStartMinute != nil || snap.BufferMinutesBetweenBlocks != 0 || len(snap.AvoidanceWindows) != 0 {
		t.Fatalf("default snapshot not empty: %+v", snap)
	}
}

func TestIngestLearnsFocusBufferAndAvoidance(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()

	// 2025-05-05 is a Monday, 2025-05-06 a Tuesday.
	events := []domain.FeedbackEvent{
		event("2025-05-05", "09:00", "09:45", true, 20),
		event("2025-05-05", "09:00", "09:45", true, 20),
		event("2025-05-05", "09:00", "09:45", true, 20),
		event("2025-05-05", "09:00", "09:45", true, 20),
		event("2025-05-06", "09:00", "10:00", false, -1),
		event("2025-05-06", "09:00", "10:00", false, -1),
		event("2025-05-06", "09:00", "10:00", false, -1),
	}
	snap, err := l.IngestFeedback(ctx, "default", events)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if snap.FocusStartMinute == nil || *snap.FocusStartMinute != 9*60 {
		t.Fatalf("focus start = %v, want 540", snap.FocusStartMinute)
	}
	if snap.FocusEndMinute == nil || *snap.FocusEndMinute != 9*60+45 {
		t.Fatalf("focus end = %v, want 585", snap.FocusEndMinute)
	}
	if snap.BufferMinutesBetweenBlocks < 30 {
		t.Fatalf("buffer = %d, want >= 30", snap.BufferMinutesBetweenBlocks)
	}
	if len(snap.AvoidanceWindows) != 1 {
		t.Fatalf("avoidance windows = %+v, want one", snap.AvoidanceWindows)
	}
	w := snap.AvoidanceWindows[0]
	if w.Weekday != 1 {
		t.Fatalf("avoidance weekday = %d, want 1 (Tuesday)", w.Weekday)
	}
	if w.StartMinute != 9*60-30 || w.EndMinute != 10*60+30 {
		t.Fatalf("avoidance window = [%d,%d], want [510,630]", w.StartMinute, w.EndMinute)
	}

	// ingest result must be what a fresh load sees
	reloaded, err := l.Load(ctx, "default")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded, snap) {
		t.Fatalf("persisted snapshot differs: %+v vs %+v", reloaded, snap)
	}
}

func TestIngestKeepsFocusWhenNoWeekdayQualifies(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()
	start, end := 600, 660
	if _, err := l.Save(ctx, "default", domain.PreferenceSnapshot{FocusStartMinute: &start, FocusEndMinute: &end}); err != nil {
		t.Fatalf("save: %v", err)
	}
	events := []domain.FeedbackEvent{
		event("2025-05-05", "09:00", "09:45", false, -1),
		event("2025-05-05", "10:00", "10:45", true, -1),
	}
	snap, err := l.IngestFeedback(ctx, "default", events)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.FocusStartMinute == nil || *snap.FocusStartMinute != 600 || *snap.FocusEndMinute != 660 {
		t.Fatalf("focus window changed without a qualifying weekday: %+v", snap)
	}
}

func TestIngestIgnoresSmallSlippage(t *testing.T) {
	l := newTestLearner(t)
	events := []domain.FeedbackEvent{
		event("2025-05-05", "09:00", "09:45", true, 5),
		event("2025-05-05", "10:00", "10:45", true, 8),
	}
	snap, err := l.IngestFeedback(context.Background(), "default", events)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.BufferMinutesBetweenBlocks != 0 {
		t.Fatalf("buffer = %d, want 0 for slippage under the floor", snap.BufferMinutesBetweenBlocks)
	}
}

func TestIngestRejectsMalformedTimestamps(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()
	events := []domain.FeedbackEvent{
		event("2025-05-05", "09:00", "09:45", true, 20),
		{PlannedStart: "yesterday", PlannedEnd: "2025-05-05T10:00:00Z", Completed: true},
	}
	_, err := l.IngestFeedback(ctx, "default", events)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	// no partial update
	snap, err := l.Load(ctx, "default")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.FocusStartMinute != nil || snap.BufferMinutesBetweenBlocks != 0 {
		t.Fatalf("partial update leaked: %+v", snap)
	}
}

func TestAvoidanceWindowsMergeOnOverlap(t *testing.T) {
	merged := mergeAllWindows([]domain.AvoidanceWindow{
		{Weekday: 1, StartMinute: 500, EndMinute: 600},
		{Weekday: 1, StartMinute: 580, EndMinute: 700},
		{Weekday: 2, StartMinute: 580, EndMinute: 700},
	})
	want := []domain.AvoidanceWindow{
		{Weekday: 1, StartMinute: 500, EndMinute: 700},
		{Weekday: 2, StartMinute: 580, EndMinute: 700},
	}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("merge = %+v, want %+v", merged, want)
	}
}

func TestSaveValidatesSnapshot(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()
	bad := domain.PreferenceSnapshot{BufferMinutesBetweenBlocks: 300}
	if _, err := l.Save(ctx, "default", bad); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error")
	}
	start := 700
	onlyStart := domain.PreferenceSnapshot{FocusStartMinute: &start}
	if _, err := l.Save(ctx, "default", onlyStart); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for half-open focus window")
	}
}
