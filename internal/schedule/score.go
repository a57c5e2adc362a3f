package schedule

import (
	"fmt"
	"sort"
	"time"

	"cognical/internal/domain"
)

// Fixed scoring weights. Changing these changes every ranking, so they are
// constants rather than configuration.
const (
	weightCoverage      = 100.0
	weightOutsideFocus  = 20.0
	weightConflicts     = 0.3
	weightFragmentation = 5.0
	weightCompactness   = 10.0
)

func severityWeight(severity string) float64 {
	switch severity {
	case SeverityHigh:
		return 60
	case SeverityMedium:
		return 30
	default:
		return 10
	}
}

func scoreOption(in *Input, blocks []domain.TimeBlock, ordered []domain.Task, events []fixedEvent) float64 {
	if len(blocks) == 0 {
		return 0
	}
	totalMinutes := 0
	for _, t := range ordered {
		totalMinutes += estimateOf(t)
	}
	placedMinutes := 0
	focusMinutes := 0
	placedTasks := map[string]bool{}
	for _, b := range blocks {
		start, err1 := parseRFC3339(b.StartAt)
		end, err2 := parseRFC3339(b.EndAt)
		if err1 != nil || err2 != nil {
			continue
		}
		mins := int(end.Sub(start).Minutes())
		placedMinutes += mins
		focusMinutes += minutesInFocus(start, end, in.Preferences)
		placedTasks[b.TaskID] = true
	}
	coverage := 0.0
	if totalMinutes > 0 {
		coverage = float64(placedMinutes) / float64(totalMinutes)
		if coverage > 1 {
			coverage = 1
		}
	}
	outsideFrac := 0.0
	if in.Preferences.FocusStartMinute != nil && placedMinutes > 0 {
		outsideFrac = 1 - float64(focusMinutes)/float64(placedMinutes)
	}
	conflictWeight := 0.0
	for _, c := range DeriveConflicts(blocks, events, in.Constraints.MaxFocusMinutesPerDay) {
		conflictWeight += severityWeight(c.Severity)
	}
	for _, c := range DependencyViolations(blocks, in.Edges) {
		conflictWeight += severityWeight(c.Severity)
	}
	fragmentation := float64(len(blocks) - len(placedTasks))

	score := weightCoverage*coverage -
		weightOutsideFocus*outsideFrac -
		weightConflicts*conflictWeight -
		weightFragmentation*fragmentation
	if in.Preferences.PreferCompactSchedule {
		score += weightCompactness * compactness(blocks)
	}
	if score < 0 {
		score = 0
	}
	return score
}

// minutesInFocus counts the block minutes that fall inside the preferred
// focus window on the block's day.
func minutesInFocus(start, end time.Time, prefs domain.PreferenceSnapshot) int {
	if prefs.FocusStartMinute == nil || prefs.FocusEndMinute == nil {
		return 0
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	focus := interval{
		start: day.Add(time.Duration(*prefs.FocusStartMinute) * time.Minute),
		end:   day.Add(time.Duration(*prefs.FocusEndMinute) * time.Minute),
	}
	b := interval{start: start, end: end}
	if !b.overlaps(focus) {
		return 0
	}
	lo := b.start
	if focus.start.After(lo) {
		lo = focus.start
	}
	hi := b.end
	if focus.end.Before(hi) {
		hi = focus.end
	}
	return int(hi.Sub(lo).Minutes())
}

// compactness is 1 for back-to-back days and decays with idle gaps.
func compactness(blocks []domain.TimeBlock) float64 {
	type span struct{ start, end time.Time }
	byDay := map[string][]span{}
	for _, b := range blocks {
		start, err1 := parseRFC3339(b.StartAt)
		end, err2 := parseRFC3339(b.EndAt)
		if err1 != nil || err2 != nil {
			continue
		}
		key := dayKey(start)
		byDay[key] = append(byDay[key], span{start, end})
	}
	gapMinutes := 0
	for _, spans := range byDay {
		sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
		for i := 1; i < len(spans); i++ {
			if g := int(spans[i].start.Sub(spans[i-1].end).Minutes()); g > 0 {
				gapMinutes += g
			}
		}
	}
	c := 1 - float64(gapMinutes)/480
	if c < 0 {
		c = 0
	}
	return c
}

// DeriveConflicts recomputes calendar-overlap and daily-overload conflicts
// from a block set. Deterministic so reads can rebuild it at any time.
func DeriveConflicts(blocks []domain.TimeBlock, events []fixedEvent, maxFocusMinutesPerDay *int) []domain.Conflict {
	var conflicts []domain.Conflict
	for _, b := range blocks {
		start, err1 := parseRFC3339(b.StartAt)
		end, err2 := parseRFC3339(b.EndAt)
		if err1 != nil || err2 != nil {
			continue
		}
		iv := interval{start: start, end: end}
		for _, e := range events {
			if e.immovable || !iv.overlaps(e.interval) {
				continue
			}
			name := e.title
			if name == "" {
				name = e.id
			}
			conflicts = append(conflicts, domain.Conflict{
				Kind:        FlagCalendarOverlap,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("block overlaps existing event %q", name),
				BlockIDs:    []string{b.ID},
				EventID:     e.id,
				TaskIDs:     []string{b.TaskID},
			})
		}
	}
	if maxFocusMinutesPerDay != nil {
		perDay := map[string]int{}
		perDayBlocks := map[string][]string{}
		var dayOrder []string
		for _, b := range blocks {
			start, err1 := parseRFC3339(b.StartAt)
			end, err2 := parseRFC3339(b.EndAt)
			if err1 != nil || err2 != nil {
				continue
			}
			key := dayKey(start)
			if _, ok := perDay[key]; !ok {
				dayOrder = append(dayOrder, key)
			}
			perDay[key] += int(end.Sub(start).Minutes())
			perDayBlocks[key] = append(perDayBlocks[key], b.ID)
		}
		sort.Strings(dayOrder)
		for _, day := range dayOrder {
			if perDay[day] > *maxFocusMinutesPerDay {
				conflicts = append(conflicts, domain.Conflict{
					Kind:        KindDailyOverload,
					Severity:    SeverityMedium,
					Description: fmt.Sprintf("%s carries %d scheduled minute(s), above the %d-minute cap", day, perDay[day], *maxFocusMinutesPerDay),
					BlockIDs:    perDayBlocks[day],
				})
			}
		}
	}
	return conflicts
}

// DeriveConflictsFromConstraints is the read-path entry: it reparses the
// persisted constraint envelope before deriving.
func DeriveConflictsFromConstraints(blocks []domain.TimeBlock, constraints domain.Constraints) []domain.Conflict {
	var events []fixedEvent
	for _, e := range constraints.ExistingEvents {
		start, err1 := parseRFC3339(e.StartAt)
		end, err2 := parseRFC3339(e.EndAt)
		if err1 != nil || err2 != nil {
			continue
		}
		events = append(events, fixedEvent{
			interval:  interval{start: start, end: end},
			id:        e.ID,
			title:     e.Title,
			immovable: e.Kind != nil && *e.Kind == "fixed",
		})
	}
	return DeriveConflicts(blocks, events, constraints.MaxFocusMinutesPerDay)
}

// DependencyViolations checks the typed ordering semantics across placed
// blocks. Violations downgrade an option, they never forbid it.
func DependencyViolations(blocks []domain.TimeBlock, edges []domain.Dependency) []domain.Conflict {
	type window struct{ start, end time.Time }
	byTask := map[string]window{}
	blockByTask := map[string]string{}
	for _, b := range blocks {
		start, err1 := parseRFC3339(b.StartAt)
		end, err2 := parseRFC3339(b.EndAt)
		if err1 != nil || err2 != nil {
			continue
		}
		w, ok := byTask[b.TaskID]
		if !ok {
			byTask[b.TaskID] = window{start, end}
			blockByTask[b.TaskID] = b.ID
			continue
		}
		if start.Before(w.start) {
			w.start = start
			blockByTask[b.TaskID] = b.ID
		}
		if end.After(w.end) {
			w.end = end
		}
		byTask[b.TaskID] = w
	}
	var conflicts []domain.Conflict
	for _, e := range edges {
		pred, okP := byTask[e.PredecessorID]
		succ, okS := byTask[e.SuccessorID]
		if !okP || !okS {
			continue
		}
		violated := false
		switch e.Type {
		case domain.DepStartToStart:
			violated = succ.start.Before(pred.start)
		case domain.DepFinishToFinish:
			violated = succ.end.Before(pred.end)
		case domain.DepStartToFinish:
			violated = succ.end.Before(pred.start)
		default: // finish_to_start
			violated = succ.start.Before(pred.end)
		}
		if violated {
			conflicts = append(conflicts, domain.Conflict{
				Kind:        FlagDependencyOrder,
				Severity:    SeverityMedium,
				Description: fmt.Sprintf("%s ordering between %s and %s is not honored", e.Type, e.PredecessorID, e.SuccessorID),
				BlockIDs:    []string{blockByTask[e.SuccessorID]},
				TaskIDs:     []string{e.PredecessorID, e.SuccessorID},
			})
		}
	}
	return conflicts
}

// MergeConflicts deduplicates by (kind, event, first block).
func MergeConflicts(dst []domain.Conflict, more ...domain.Conflict) []domain.Conflict {
	return appendConflicts(dst, more...)
}

// appendConflicts deduplicates by (kind, event, first block).
func appendConflicts(dst []domain.Conflict, more ...domain.Conflict) []domain.Conflict {
	seen := map[string]bool{}
	for _, c := range dst {
		seen[conflictKey(c)] = true
	}
	for _, c := range more {
		if key := conflictKey(c); !seen[key] {
			seen[key] = true
			dst = append(dst, c)
		}
	}
	return dst
}

func conflictKey(c domain.Conflict) string {
	first := ""
	if len(c.BlockIDs) > 0 {
		first = c.BlockIDs[0]
	}
	return c.Kind + "|" + c.EventID + "|" + first + "|" + c.Description
}
