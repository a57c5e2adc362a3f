// Package schedule generates ranked candidate day-plans. The optimizer is a
// pure function of its inputs plus an integer seed: it never reads the clock
// or OS entropy, so identical inputs reproduce identical output, block ids
// included.
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"cognical/internal/domain"
)

const (
	DefaultGranularityMinutes = 15
	defaultEstimateMinutes    = 60
	minSplitChunkMinutes      = 30
	longSessionMinutes        = 120
)

// Conflict kinds and block flags.
const (
	FlagCalendarOverlap = "calendar-overlap"
	FlagSplitTask       = "split-task"
	FlagDeadlineRisk    = "deadline-risk"
	FlagLongSession     = "long-session"
	FlagDependencyOrder = "dependency-order"
	KindDailyOverload   = "daily-overload"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type Input struct {
	Tasks       []domain.Task
	Edges       []domain.Dependency
	Constraints domain.Constraints
	Preferences domain.PreferenceSnapshot
	Seed        int64
	// SessionSeed feeds deterministic option and block id derivation,
	// normally the planning session id.
	SessionSeed string
	// GranularityMinutes quantizes candidate slots; zero means the default.
	GranularityMinutes int
}

type Option struct {
	ID         string
	Rank       int
	Score      float64
	Label      string
	Summary    string
	CotSteps   []domain.CotStep
	RiskNotes  []string
	IsFallback bool
	Blocks     []domain.TimeBlock
}

type Result struct {
	Options []Option
	// Conflicts is the union across options, deduplicated by kind and block.
	Conflicts []domain.Conflict
}

type strategy struct {
	label string
	order func(in *Input) []domain.Task
}

func strategies() []strategy {
	return []strategy{
		{label: "priority-first", order: orderByPriority},
		{label: "deadline-first", order: orderByDeadline},
		{label: "dependency-order", order: orderByDependencies},
	}
}

// Generate produces ranked candidate options plus the derived conflict set.
func Generate(in Input) (Result, error) {
	if in.GranularityMinutes <= 0 {
		in.GranularityMinutes = DefaultGranularityMinutes
	}
	windows, events, err := parseConstraints(&in)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(in.Seed))
	var candidates []Option
	for _, st := range strategies() {
		ordered := st.order(&in)
		opt := placeOption(&in, st.label, ordered, windows, events)
		if len(opt.Blocks) > 0 {
			candidates = append(candidates, opt)
		}
	}

	// seed-derived permutation breaks score ties deterministically
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) < len(strategies()) {
		candidates = append(candidates, fallbackOption(&in))
	}
	for i := range candidates {
		assignIdentifiers(&candidates[i], in.SessionSeed, i+1)
	}

	res := Result{Options: candidates}
	for _, opt := range res.Options {
		res.Conflicts = appendConflicts(res.Conflicts,
			DeriveConflicts(opt.Blocks, events, in.Constraints.MaxFocusMinutesPerDay)...)
		res.Conflicts = appendConflicts(res.Conflicts,
			DependencyViolations(opt.Blocks, in.Edges)...)
	}
	return res, nil
}

// fallbackOption lists every task as deferred when no strategy could place
// anything else. Never an error: the caller always gets at least one option.
func fallbackOption(in *Input) Option {
	notes := make([]string, 0, len(in.Tasks))
	for _, t := range orderByPriority(in) {
		notes = append(notes, fmt.Sprintf("task %q deferred: no feasible slot", t.Title))
	}
	return Option{
		Label:      "deferred",
		Summary:    fmt.Sprintf("no feasible placement; %d task(s) deferred", len(in.Tasks)),
		RiskNotes:  notes,
		IsFallback: true,
		CotSteps: []domain.CotStep{
			{Step: 1, Thought: "no candidate ordering produced a feasible placement", Result: "emit deferred fallback"},
		},
	}
}

func orderByPriority(in *Input) []domain.Task {
	out := append([]domain.Task(nil), in.Tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := domain.PriorityWeight(a.Priority), domain.PriorityWeight(b.Priority); pa != pb {
			return pa > pb
		}
		if da, db := dueKey(a.DueAt), dueKey(b.DueAt); da != db {
			return da < db
		}
		return a.ID < b.ID
	})
	return out
}

func orderByDeadline(in *Input) []domain.Task {
	out := append([]domain.Task(nil), in.Tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if da, db := dueKey(a.DueAt), dueKey(b.DueAt); da != db {
			return da < db
		}
		if pa, pb := domain.PriorityWeight(a.Priority), domain.PriorityWeight(b.Priority); pa != pb {
			return pa > pb
		}
		return a.ID < b.ID
	})
	return out
}

// orderByDependencies walks the task set in topological order; tasks whose
// in-set predecessors cannot come first are deferred to the tail.
func orderByDependencies(in *Input) []domain.Task {
	byID := make(map[string]domain.Task, len(in.Tasks))
	for _, t := range in.Tasks {
		byID[t.ID] = t
	}
	preds := map[string][]string{}
	succs := map[string][]string{}
	indegree := map[string]int{}
	for _, t := range in.Tasks {
		indegree[t.ID] = 0
	}
	for _, e := range in.Edges {
		if _, okP := byID[e.PredecessorID]; !okP {
			continue
		}
		if _, okS := byID[e.SuccessorID]; !okS {
			continue
		}
		preds[e.SuccessorID] = append(preds[e.SuccessorID], e.PredecessorID)
		succs[e.PredecessorID] = append(succs[e.PredecessorID], e.SuccessorID)
		indegree[e.SuccessorID]++
	}
	var frontier []string
	for _, t := range in.Tasks {
		if indegree[t.ID] == 0 {
			frontier = append(frontier, t.ID)
		}
	}
	sort.Strings(frontier)
	out := make([]domain.Task, 0, len(in.Tasks))
	seen := map[string]bool{}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		seen[id] = true
		out = append(out, byID[id])
		var released []string
		for _, succ := range succs[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				released = append(released, succ)
			}
		}
		if len(released) > 0 {
			sort.Strings(released)
			frontier = append(frontier, released...)
			sort.Strings(frontier)
		}
	}
	// anything unseen sits on a cycle or unmet predecessor; defer it
	var deferred []domain.Task
	for _, t := range in.Tasks {
		if !seen[t.ID] {
			deferred = append(deferred, t)
		}
	}
	sort.SliceStable(deferred, func(i, j int) bool { return deferred[i].ID < deferred[j].ID })
	return append(out, deferred...)
}

func dueKey(due *string) string {
	if due == nil {
		return "￿"
	}
	return *due
}

func estimateOf(t domain.Task) int {
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes > 0 {
		return *t.EstimatedMinutes
	}
	return defaultEstimateMinutes
}

func parseRFC3339(v string) (time.Time, error) {
	return time.Parse(time.RFC3339, v)
}
