package planning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/behavior"
	"cognical/internal/cache"
	"cognical/internal/db"
	"cognical/internal/dependency"
	"cognical/internal/domain"
	"cognical/internal/migrate"
	"cognical/internal/repo"
	"cognical/internal/schedule"
	"cognical/internal/task"
)

type testEnv struct {
	repo     repo.Repo
	tasks    *task.Service
	deps     *dependency.Service
	planning *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) }

	r := repo.Repo{DB: conn}
	deps := dependency.New(r)
	deps.Now = now
	tasks := task.New(r)
	tasks.Now = now
	tasks.Invalidated = deps.Invalidate
	learner := behavior.New(r)
	learner.Now = now
	responses := cache.New(r, 24*time.Hour)
	responses.Now = now

	svc := New(r, tasks, deps, learner, responses)
	svc.Now = now
	next := 0
	svc.NewID = func() string {
		next++
		return fmt.Sprintf("S%d", next)
	}
	return &testEnv{repo: r, tasks: tasks, deps: deps, planning: svc}
}

func (e *testEnv) mustCreate(t *testing.T, id, title, priority string, estimated int) {
	t.Helper()
	e.tasks.NewID = func() string { return id }
	_, err := e.tasks.Create(context.Background(), task.CreateInput{
		Title:            title,
		Priority:         priority,
		EstimatedMinutes: &estimated,
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func seedTwoTasks(t *testing.T, e *testEnv) {
	t.Helper()
	e.mustCreate(t, "T-api", "API 实现", "high", 150)
	e.mustCreate(t, "T-spec", "Spec review", "medium", 120)
}

func dayConstraints() *domain.Constraints {
	kind := "meeting"
	return &domain.Constraints{
		AvailableWindows: []domain.TimeWindow{
			{StartAt: "2025-05-01T09:00:00Z", EndAt: "2025-05-01T17:00:00Z"},
		},
		ExistingEvents: []domain.CalendarEvent{
			{ID: "evt-standup", Title: "Standup", StartAt: "2025-05-01T10:00:00Z", EndAt: "2025-05-01T11:00:00Z", Kind: &kind},
		},
	}
}

func generateDraft(t *testing.T, e *testEnv, seed int64) *SessionView {
	t.Helper()
	view, err := e.planning.Generate(context.Background(), GenerateInput{
		TaskIDs:     []string{"T-api", "T-spec"},
		Constraints: dayConstraints(),
		Seed:        &seed,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return view
}

func hasConflict(conflicts []domain.Conflict, kind string) bool {
	for _, c := range conflicts {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

func TestGenerateProducesRankedDraft(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)

	view := generateDraft(t, e, 11)
	if view.Session.Status != domain.SessionDraft {
		t.Fatalf("status = %q, want draft", view.Session.Status)
	}
	if view.Source != SourceOptimizer {
		t.Fatalf("source = %q, want optimizer", view.Source)
	}
	if len(view.Options) < 3 {
		t.Fatalf("got %d options, want at least 3", len(view.Options))
	}
	for i, opt := range view.Options {
		if opt.Rank != i+1 {
			t.Fatalf("option %d rank = %d, want dense ranks", i, opt.Rank)
		}
		if !strings.HasPrefix(opt.ID, "opt-") {
			t.Fatalf("option id %q lacks prefix", opt.ID)
		}
	}
	top := view.Options[0]
	var covered int
	for _, b := range top.Blocks {
		start, _ := time.Parse(time.RFC3339, b.StartAt)
		end, _ := time.Parse(time.RFC3339, b.EndAt)
		covered += int(end.Sub(start).Minutes())
	}
	if covered != 270 {
		t.Fatalf("top option covers %d minutes, want 270", covered)
	}
	if !hasConflict(top.Conflicts, schedule.FlagCalendarOverlap) {
		t.Fatalf("expected calendar-overlap conflict, got %+v", top.Conflicts)
	}
}

func TestGenerateIsRepeatableViaCache(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)

	first := generateDraft(t, e, 11)
	second := generateDraft(t, e, 11)
	if second.Source != SourceCache {
		t.Fatalf("second source = %q, want cache", second.Source)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("cache returned session %q, want %q", second.Session.ID, first.Session.ID)
	}

	third := generateDraft(t, e, 12)
	if third.Source != SourceOptimizer {
		t.Fatalf("different seed source = %q, want optimizer", third.Source)
	}
	if third.Session.ID == first.Session.ID {
		t.Fatal("different seed reused the cached session")
	}
}

func TestApplyMaterializesPlannedStarts(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	top := view.Options[0]

	applied, err := e.planning.Apply(ctx, ApplyInput{SessionID: view.Session.ID, OptionID: top.ID})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Session.Status != domain.SessionApplied {
		t.Fatalf("status = %q, want applied", applied.Session.Status)
	}
	if applied.Session.SelectedOptionID == nil || *applied.Session.SelectedOptionID != top.ID {
		t.Fatalf("selected option = %v, want %q", applied.Session.SelectedOptionID, top.ID)
	}

	earliest := map[string]string{}
	for _, b := range top.Blocks {
		if cur, ok := earliest[b.TaskID]; !ok || b.StartAt < cur {
			earliest[b.TaskID] = b.StartAt
		}
	}
	for taskID, want := range earliest {
		got, err := e.tasks.Get(ctx, taskID)
		if err != nil {
			t.Fatalf("get %s: %v", taskID, err)
		}
		if got.PlannedStartAt == nil || *got.PlannedStartAt != want {
			t.Fatalf("%s planned start = %v, want %q", taskID, got.PlannedStartAt, want)
		}
	}
	for _, opt := range applied.Options {
		if opt.ID != top.ID {
			continue
		}
		for _, b := range opt.Blocks {
			if b.Status != domain.BlockApplied || b.AppliedAt == nil {
				t.Fatalf("block %s status = %q appliedAt = %v", b.ID, b.Status, b.AppliedAt)
			}
		}
	}
}

func TestApplyTwiceConflicts(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	top := view.Options[0]
	if _, err := e.planning.Apply(ctx, ApplyInput{SessionID: view.Session.ID, OptionID: top.ID}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := e.planning.Apply(ctx, ApplyInput{SessionID: view.Session.ID, OptionID: top.ID})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second apply err = %v, want conflict", err)
	}
}

func TestResolveClearsCalendarOverlap(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	top := view.Options[0]

	eventStart, _ := time.Parse(time.RFC3339, "2025-05-01T10:00:00Z")
	eventEnd, _ := time.Parse(time.RFC3339, "2025-05-01T11:00:00Z")
	var overlapping *domain.TimeBlock
	for i, b := range top.Blocks {
		start, _ := time.Parse(time.RFC3339, b.StartAt)
		end, _ := time.Parse(time.RFC3339, b.EndAt)
		if start.Before(eventEnd) && eventStart.Before(end) {
			overlapping = &top.Blocks[i]
			break
		}
	}
	if overlapping == nil {
		t.Fatal("no block overlaps the standup")
	}

	oldStart, _ := time.Parse(time.RFC3339, overlapping.StartAt)
	oldEnd, _ := time.Parse(time.RFC3339, overlapping.EndAt)
	duration := oldEnd.Sub(oldStart)
	newStart := "2025-05-01T11:30:00Z"
	ns, _ := time.Parse(time.RFC3339, newStart)
	newEnd := ns.Add(duration).Format(time.RFC3339)

	resolved, err := e.planning.Resolve(ctx, ResolveInput{
		SessionID: view.Session.ID,
		OptionID:  top.ID,
		Adjustments: []BlockOverride{
			{BlockID: overlapping.ID, StartAt: &newStart, EndAt: &newEnd},
		},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, opt := range resolved.Options {
		if opt.ID != top.ID {
			continue
		}
		if hasConflict(opt.Conflicts, schedule.FlagCalendarOverlap) {
			t.Fatalf("calendar overlap persists after resolve: %+v", opt.Conflicts)
		}
		for _, b := range opt.Blocks {
			if b.ID == overlapping.ID && b.StartAt != newStart {
				t.Fatalf("block start = %q, want %q", b.StartAt, newStart)
			}
		}
	}
	// resolve never touches tasks
	got, err := e.tasks.Get(ctx, overlapping.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.PlannedStartAt != nil {
		t.Fatalf("resolve wrote planned start %v", *got.PlannedStartAt)
	}
}

func TestResolveRejectsInvertedWindow(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	top := view.Options[0]
	block := top.Blocks[0]
	badEnd := block.StartAt
	_, err := e.planning.Resolve(ctx, ResolveInput{
		SessionID:   view.Session.ID,
		OptionID:    top.ID,
		Adjustments: []BlockOverride{{BlockID: block.ID, EndAt: &badEnd}},
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	// rejected adjustment must not partially persist
	after, err := e.planning.View(ctx, view.Session.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if after.Options[0].Blocks[0].EndAt != block.EndAt {
		t.Fatalf("block end mutated to %q", after.Options[0].Blocks[0].EndAt)
	}
}

func TestApplyRejectsForeignOption(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	first := generateDraft(t, e, 11)
	second := generateDraft(t, e, 99)
	foreign := second.Options[0].ID

	_, err := e.planning.Apply(ctx, ApplyInput{SessionID: first.Session.ID, OptionID: foreign})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	_, err = e.planning.Apply(ctx, ApplyInput{SessionID: first.Session.ID, OptionID: "opt-missing"})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDiscardIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	discarded, err := e.planning.Discard(ctx, view.Session.ID)
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if discarded.Session.Status != domain.SessionDiscarded {
		t.Fatalf("status = %q, want discarded", discarded.Session.Status)
	}
	if _, err := e.planning.Discard(ctx, view.Session.ID); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second discard err = %v, want conflict", err)
	}
	_, err = e.planning.Apply(ctx, ApplyInput{SessionID: view.Session.ID, OptionID: view.Options[0].ID})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("apply after discard err = %v, want conflict", err)
	}
}

func TestGenerateUnknownTask(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	seed := int64(11)
	_, err := e.planning.Generate(context.Background(), GenerateInput{
		TaskIDs: []string{"T-api", "T-ghost"},
		Seed:    &seed,
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Details["taskId"] != "T-ghost" {
		t.Fatalf("details = %+v, want taskId T-ghost", err)
	}
}

func TestPlanningEventsAreAppended(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	if _, err := e.planning.Apply(ctx, ApplyInput{SessionID: view.Session.ID, OptionID: view.Options[0].ID}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	evts, err := e.repo.LatestEvents(ctx, 10, "", "planning_session", view.Session.ID)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range evts {
		seen[ev.Type] = true
	}
	if !seen["planning://generated"] || !seen["planning://applied"] {
		t.Fatalf("event types = %v, want generated and applied", seen)
	}
}

func TestRecordFeedbackUpdatesPreferences(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	actualStart := "2025-04-28T09:20:00Z"
	actualEnd := "2025-04-28T10:05:00Z"
	var evts []domain.FeedbackEvent
	for i := 0; i < 4; i++ {
		day := time.Date(2025, 4, 7+7*i, 9, 0, 0, 0, time.UTC)
		s := day.Add(20 * time.Minute).Format(time.RFC3339)
		en := day.Add(65 * time.Minute).Format(time.RFC3339)
		if i == 3 {
			s, en = actualStart, actualEnd
		}
		evts = append(evts, domain.FeedbackEvent{
			PlannedStart: day.Format(time.RFC3339),
			PlannedEnd:   day.Add(45 * time.Minute).Format(time.RFC3339),
			ActualStart:  &s,
			ActualEnd:    &en,
			Completed:    true,
		})
	}
	snap, err := e.planning.RecordFeedback(ctx, "default", evts)
	if err != nil {
		t.Fatalf("record feedback: %v", err)
	}
	if snap.FocusStartMinute == nil {
		t.Fatal("expected focus window after four completions")
	}
	prefEvts, err := e.repo.LatestEvents(ctx, 10, "planning://preferences-updated", "preference", "default")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(prefEvts) == 0 {
		t.Fatal("expected a preferences-updated event")
	}
}

func TestApplyWithOverrideMovesBlock(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	top := view.Options[0]
	if len(top.Blocks) == 0 {
		t.Fatal("top option has no blocks")
	}
	target := top.Blocks[0]
	oldStart, _ := time.Parse(time.RFC3339, target.StartAt)
	oldEnd, _ := time.Parse(time.RFC3339, target.EndAt)
	duration := oldEnd.Sub(oldStart)

	// override carries a +08:00 offset; the stored window and the planned
	// start must come out normalized to UTC
	zone := time.FixedZone("CST", 8*3600)
	ns := time.Date(2025, 5, 1, 16, 30, 0, 0, zone)
	newStart := ns.Format(time.RFC3339)
	newEnd := ns.Add(duration).Format(time.RFC3339)
	wantStart := ns.UTC().Format(time.RFC3339)

	applied, err := e.planning.Apply(ctx, ApplyInput{
		SessionID: view.Session.ID,
		OptionID:  top.ID,
		Overrides: []BlockOverride{
			{BlockID: target.ID, StartAt: &newStart, EndAt: &newEnd},
		},
	})
	if err != nil {
		t.Fatalf("apply with override: %v", err)
	}
	if applied.Session.Status != domain.SessionApplied {
		t.Fatalf("status = %q, want applied", applied.Session.Status)
	}
	for _, opt := range applied.Options {
		if opt.ID != top.ID {
			continue
		}
		for _, b := range opt.Blocks {
			if b.ID == target.ID && b.StartAt != wantStart {
				t.Fatalf("block start = %q, want %q", b.StartAt, wantStart)
			}
		}
	}
	// 08:30Z precedes every window slot, so it is the task's earliest block
	got, err := e.tasks.Get(ctx, target.TaskID)
	if err != nil {
		t.Fatalf("get %s: %v", target.TaskID, err)
	}
	if got.PlannedStartAt == nil || *got.PlannedStartAt != wantStart {
		t.Fatalf("planned start = %v, want %q", got.PlannedStartAt, wantStart)
	}
}

func TestResolveAppliesEveryAdjustment(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)
	ctx := context.Background()

	view := generateDraft(t, e, 11)
	top := view.Options[0]
	if len(top.Blocks) < 2 {
		t.Fatalf("need two blocks, have %d", len(top.Blocks))
	}

	want := map[string]string{}
	var adjustments []BlockOverride
	for i := 0; i < 2; i++ {
		b := top.Blocks[i]
		st, _ := time.Parse(time.RFC3339, b.StartAt)
		en, _ := time.Parse(time.RFC3339, b.EndAt)
		newStart := st.Add(5 * time.Minute).Format(time.RFC3339)
		newEnd := en.Add(5 * time.Minute).Format(time.RFC3339)
		want[b.ID] = newStart
		adjustments = append(adjustments, BlockOverride{BlockID: b.ID, StartAt: &newStart, EndAt: &newEnd})
	}

	resolved, err := e.planning.Resolve(ctx, ResolveInput{
		SessionID:   view.Session.ID,
		OptionID:    top.ID,
		Adjustments: adjustments,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, opt := range resolved.Options {
		if opt.ID != top.ID {
			continue
		}
		moved := 0
		for _, b := range opt.Blocks {
			if wantStart, ok := want[b.ID]; ok {
				if b.StartAt != wantStart {
					t.Fatalf("block %s start = %q, want %q", b.ID, b.StartAt, wantStart)
				}
				moved++
			}
		}
		if moved != 2 {
			t.Fatalf("moved %d blocks, want 2", moved)
		}
	}
}

func TestGenerateDeduplicatesTaskIDs(t *testing.T) {
	e := newTestEnv(t)
	seedTwoTasks(t, e)

	seed := int64(11)
	view, err := e.planning.Generate(context.Background(), GenerateInput{
		TaskIDs:     []string{"T-api", "T-api", "T-spec", "T-api"},
		Constraints: dayConstraints(),
		Seed:        &seed,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := view.Session.TaskIDs; len(got) != 2 || got[0] != "T-api" || got[1] != "T-spec" {
		t.Fatalf("session task ids = %v, want [T-api T-spec]", got)
	}
	minutes := 0
	for _, b := range view.Options[0].Blocks {
		if b.TaskID != "T-api" {
			continue
		}
		st, _ := time.Parse(time.RFC3339, b.StartAt)
		en, _ := time.Parse(time.RFC3339, b.EndAt)
		minutes += int(en.Sub(st).Minutes())
	}
	if minutes != 150 {
		t.Fatalf("T-api scheduled %d minutes, want 150", minutes)
	}
}
