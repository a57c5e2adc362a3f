package schedule

import (
	"reflect"
	"testing"
	"time"

	"cognical/internal/domain"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func twoTaskInput(seed int64) Input {
	return Input{
		Tasks: []domain.Task{
			{ID: "T-api", Title: "API Implementation", Status: domain.StatusTodo, Priority: domain.PriorityMedium, EstimatedMinutes: intPtr(150)},
			{ID: "T-spec", Title: "Spec Review", Status: domain.StatusTodo, Priority: domain.PriorityMedium, EstimatedMinutes: intPtr(120)},
		},
		Constraints: domain.Constraints{
			AvailableWindows: []domain.TimeWindow{{StartAt: "2025-05-01T09:00:00Z", EndAt: "2025-05-01T17:00:00Z"}},
			ExistingEvents:   []domain.CalendarEvent{{ID: "evt-standup", Title: "Standup", StartAt: "2025-05-01T10:00:00Z", EndAt: "2025-05-01T11:00:00Z"}},
		},
		Seed:        seed,
		SessionSeed: "session-test",
	}
}

func TestGenerateCoversTasksAndFlagsOverlap(t *testing.T) {
	res, err := Generate(twoTaskInput(11))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Options) == 0 {
		t.Fatalf("no options")
	}
	top := res.Options[0]
	if top.Rank != 1 || top.IsFallback {
		t.Fatalf("unexpected top option: %+v", top)
	}
	covered := map[string]bool{}
	for _, b := range top.Blocks {
		covered[b.TaskID] = true
	}
	if !covered["T-api"] || !covered["T-spec"] {
		t.Fatalf("top option does not cover both tasks: %+v", top.Blocks)
	}
	found := false
	for _, c := range res.Conflicts {
		if c.Kind == FlagCalendarOverlap && c.EventID == "evt-standup" {
			found = true
		}
	}
	if !found {
		t.Fatalf("calendar-overlap conflict missing: %+v", res.Conflicts)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(twoTaskInput(11))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(twoTaskInput(11))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different output")
	}
	for _, opt := range a.Options {
		for _, blk := range opt.Blocks {
			if blk.ID == "" || blk.OptionID != opt.ID {
				t.Fatalf("identifier derivation broken: %+v", blk)
			}
		}
	}
}

func TestBlocksWithinOptionNeverOverlap(t *testing.T) {
	in := twoTaskInput(3)
	in.Tasks = append(in.Tasks, domain.Task{ID: "T-doc", Title: "Docs", Status: domain.StatusTodo, Priority: domain.PriorityHigh, EstimatedMinutes: intPtr(90)})
	res, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, opt := range res.Options {
		for i := range opt.Blocks {
			for j := i + 1; j < len(opt.Blocks); j++ {
				a, b := opt.Blocks[i], opt.Blocks[j]
				as, _ := time.Parse(time.RFC3339, a.StartAt)
				ae, _ := time.Parse(time.RFC3339, a.EndAt)
				bs, _ := time.Parse(time.RFC3339, b.StartAt)
				be, _ := time.Parse(time.RFC3339, b.EndAt)
				if as.Before(be) && bs.Before(ae) {
					t.Fatalf("option %d blocks overlap: %+v / %+v", opt.Rank, a, b)
				}
			}
		}
	}
}

func TestRanksAreDenseAndScoresMonotone(t *testing.T) {
	res, err := Generate(twoTaskInput(42))
	if err != nil {
		t.Fatal(err)
	}
	prevScore := -1.0
	for i, opt := range res.Options {
		if opt.Rank != i+1 {
			t.Fatalf("rank gap at %d: %+v", i, opt)
		}
		if i > 0 && !opt.IsFallback && opt.Score > prevScore {
			t.Fatalf("scores not monotone with rank")
		}
		prevScore = opt.Score
	}
}

func TestFallbackWhenNothingSchedulable(t *testing.T) {
	in := Input{
		Tasks:       []domain.Task{{ID: "T1", Title: "Homeless task", Status: domain.StatusTodo, Priority: domain.PriorityMedium}},
		Seed:        1,
		SessionSeed: "session-fallback",
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Options) != 1 || !res.Options[0].IsFallback {
		t.Fatalf("expected a lone fallback option, got %+v", res.Options)
	}
	if res.Options[0].Rank != 1 {
		t.Fatalf("fallback rank = %d", res.Options[0].Rank)
	}
	if len(res.Options[0].RiskNotes) == 0 {
		t.Fatalf("fallback lists no deferred tasks")
	}
}

func TestAvoidanceWindowsRemoveSlots(t *testing.T) {
	in := twoTaskInput(5)
	// 2025-05-01 is a Thursday, weekday 3
	in.Preferences.AvoidanceWindows = []domain.AvoidanceWindow{{Weekday: 3, StartMinute: 9 * 60, EndMinute: 12 * 60}}
	res, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, opt := range res.Options {
		for _, b := range opt.Blocks {
			start, _ := time.Parse(time.RFC3339, b.StartAt)
			if start.Hour() < 12 {
				t.Fatalf("block placed inside avoidance window: %+v", b)
			}
		}
	}
}

func TestBufferSeparatesBlocks(t *testing.T) {
	in := twoTaskInput(5)
	in.Preferences.BufferMinutesBetweenBlocks = 30
	res, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, opt := range res.Options {
		blocks := opt.Blocks
		for i := 1; i < len(blocks); i++ {
			prevEnd, _ := time.Parse(time.RFC3339, blocks[i-1].EndAt)
			start, _ := time.Parse(time.RFC3339, blocks[i].StartAt)
			if start.Sub(prevEnd) < 30*time.Minute {
				t.Fatalf("buffer not honored between %+v and %+v", blocks[i-1], blocks[i])
			}
		}
	}
}

func TestDailyCapDefersWork(t *testing.T) {
	in := twoTaskInput(9)
	in.Constraints.MaxFocusMinutesPerDay = intPtr(150)
	res, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, opt := range res.Options {
		total := 0
		for _, b := range opt.Blocks {
			start, _ := time.Parse(time.RFC3339, b.StartAt)
			end, _ := time.Parse(time.RFC3339, b.EndAt)
			total += int(end.Sub(start).Minutes())
		}
		if !opt.IsFallback && total > 150 {
			t.Fatalf("daily cap exceeded: %d minutes in option %d", total, opt.Rank)
		}
	}
}

func TestDeadlineRiskFlagsAndConfidence(t *testing.T) {
	in := Input{
		Tasks: []domain.Task{{
			ID: "T-late", Title: "Late report", Status: domain.StatusTodo,
			Priority: domain.PriorityHigh, EstimatedMinutes: intPtr(180),
			DueAt: strPtr("2025-05-01T10:00:00Z"),
		}},
		Constraints: domain.Constraints{
			AvailableWindows: []domain.TimeWindow{{StartAt: "2025-05-01T09:00:00Z", EndAt: "2025-05-01T17:00:00Z"}},
		},
		Seed:        2,
		SessionSeed: "session-deadline",
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	b := res.Options[0].Blocks[0]
	if !contains(b.ConflictFlags, FlagDeadlineRisk) {
		t.Fatalf("deadline risk flag missing: %+v", b)
	}
	if !contains(b.ConflictFlags, FlagLongSession) {
		t.Fatalf("long session flag missing: %+v", b)
	}
	// 0.85 - 0.1 (long) - 0.05 (no buffer) - 0.2 (deadline)
	if b.Confidence < 0.49 || b.Confidence > 0.51 {
		t.Fatalf("confidence = %f", b.Confidence)
	}
}

func TestDependencyViolationsDetected(t *testing.T) {
	blocks := []domain.TimeBlock{
		{ID: "b1", TaskID: "A", StartAt: "2025-05-01T12:00:00Z", EndAt: "2025-05-01T13:00:00Z"},
		{ID: "b2", TaskID: "B", StartAt: "2025-05-01T09:00:00Z", EndAt: "2025-05-01T10:00:00Z"},
	}
	edges := []domain.Dependency{{PredecessorID: "A", SuccessorID: "B", Type: domain.DepFinishToStart}}
	conflicts := DependencyViolations(blocks, edges)
	if len(conflicts) != 1 || conflicts[0].Kind != FlagDependencyOrder {
		t.Fatalf("violation not detected: %+v", conflicts)
	}
	// satisfied ordering yields nothing
	edges[0].Type = domain.DepStartToFinish
	blocks[1].StartAt = "2025-05-01T13:00:00Z"
	blocks[1].EndAt = "2025-05-01T14:00:00Z"
	if got := DependencyViolations(blocks, edges); len(got) != 0 {
		t.Fatalf("unexpected violations: %+v", got)
	}
}

func TestDailyOverloadConflict(t *testing.T) {
	blocks := []domain.TimeBlock{
		{ID: "b1", TaskID: "A", StartAt: "2025-05-01T09:00:00Z", EndAt: "2025-05-01T13:00:00Z"},
		{ID: "b2", TaskID: "B", StartAt: "2025-05-01T14:00:00Z", EndAt: "2025-05-01T18:00:00Z"},
	}
	conflicts := DeriveConflicts(blocks, nil, intPtr(300))
	if len(conflicts) != 1 || conflicts[0].Kind != KindDailyOverload || conflicts[0].Severity != SeverityMedium {
		t.Fatalf("overload not reported: %+v", conflicts)
	}
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
