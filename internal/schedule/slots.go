package schedule

import (
	"sort"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/domain"
)

const (
	defaultWindowStartHour = 9
	defaultWindowEndHour   = 18
	defaultPlanningDays    = 3
)

type interval struct {
	start, end time.Time
}

func (iv interval) minutes() int {
	return int(iv.end.Sub(iv.start).Minutes())
}

func (iv interval) overlaps(other interval) bool {
	return iv.start.Before(other.end) && other.start.Before(iv.end)
}

type fixedEvent struct {
	interval
	id        string
	title     string
	immovable bool
}

// parseConstraints resolves the constraint envelope into concrete windows
// and events. Absent windows are synthesized as working days over the
// planning range so a bare request still schedules.
func parseConstraints(in *Input) ([]interval, []fixedEvent, error) {
	var windows []interval
	for _, w := range in.Constraints.AvailableWindows {
		start, err := parseRFC3339(w.StartAt)
		if err != nil {
			return nil, nil, apperr.Validation("available window start is not a valid RFC3339 timestamp")
		}
		end, err := parseRFC3339(w.EndAt)
		if err != nil {
			return nil, nil, apperr.Validation("available window end is not a valid RFC3339 timestamp")
		}
		if !end.After(start) {
			return nil, nil, apperr.Validation("available window must end after it starts")
		}
		windows = append(windows, interval{start: start, end: end})
	}
	if len(windows) == 0 {
		synthesized, err := defaultWindows(in)
		if err != nil {
			return nil, nil, err
		}
		windows = synthesized
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].start.Before(windows[j].start) })

	var events []fixedEvent
	for _, e := range in.Constraints.ExistingEvents {
		start, err := parseRFC3339(e.StartAt)
		if err != nil {
			return nil, nil, apperr.Validation("existing event start is not a valid RFC3339 timestamp")
		}
		end, err := parseRFC3339(e.EndAt)
		if err != nil {
			return nil, nil, apperr.Validation("existing event end is not a valid RFC3339 timestamp")
		}
		if !end.After(start) {
			return nil, nil, apperr.Validation("existing event must end after it starts")
		}
		events = append(events, fixedEvent{
			interval:  interval{start: start, end: end},
			id:        e.ID,
			title:     e.Title,
			immovable: e.Kind != nil && *e.Kind == "fixed",
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].start.Before(events[j].start) })
	return windows, events, nil
}

// defaultWindows lays 09:00-18:00 working windows over the planning range.
// Without any anchor the optimizer cannot invent one (it never reads the
// clock), so no windows are produced and the fallback option takes over.
func defaultWindows(in *Input) ([]interval, error) {
	anchor, err := planningAnchor(in)
	if err != nil || anchor == nil {
		return nil, err
	}
	days := defaultPlanningDays
	if in.Constraints.PlanningEndAt != nil {
		end, err := parseRFC3339(*in.Constraints.PlanningEndAt)
		if err != nil {
			return nil, apperr.Validation("planning end is not a valid RFC3339 timestamp")
		}
		if d := int(end.Sub(*anchor).Hours()/24) + 1; d > 0 {
			days = d
		}
	}
	var windows []interval
	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
	for i := 0; i < days; i++ {
		start := day.Add(time.Duration(defaultWindowStartHour) * time.Hour)
		end := day.Add(time.Duration(defaultWindowEndHour) * time.Hour)
		if start.Before(*anchor) {
			start = *anchor
		}
		if end.After(start) {
			windows = append(windows, interval{start: start, end: end})
		}
		day = day.AddDate(0, 0, 1)
	}
	return windows, nil
}

func planningAnchor(in *Input) (*time.Time, error) {
	if in.Constraints.PlanningStartAt != nil {
		t, err := parseRFC3339(*in.Constraints.PlanningStartAt)
		if err != nil {
			return nil, apperr.Validation("planning start is not a valid RFC3339 timestamp")
		}
		return &t, nil
	}
	var earliest *time.Time
	for _, task := range in.Tasks {
		for _, v := range []*string{task.PlannedStartAt, task.StartAt, task.DueAt} {
			if v == nil {
				continue
			}
			t, err := parseRFC3339(*v)
			if err != nil {
				continue
			}
			if earliest == nil || t.Before(*earliest) {
				earliest = &t
			}
		}
	}
	return earliest, nil
}

// freeRuns carves the windows down to schedulable intervals: grid-aligned,
// outside avoidance windows, outside immovable events. Movable events stay
// in; overlapping them is allowed and surfaced as a conflict.
func freeRuns(windows []interval, prefs domain.PreferenceSnapshot, events []fixedEvent, granularity int) []interval {
	var runs []interval
	for _, w := range windows {
		aligned := interval{start: alignUp(w.start, granularity), end: alignDown(w.end, granularity)}
		if !aligned.end.After(aligned.start) {
			continue
		}
		parts := []interval{aligned}
		for _, av := range avoidanceIntervals(aligned, prefs.AvoidanceWindows) {
			parts = subtract(parts, av)
		}
		for _, e := range events {
			if e.immovable {
				parts = subtract(parts, e.interval)
			}
		}
		runs = append(runs, parts...)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].start.Before(runs[j].start) })
	return runs
}

// avoidanceIntervals projects per-weekday avoidance minutes onto the
// concrete days a window covers.
func avoidanceIntervals(w interval, avoid []domain.AvoidanceWindow) []interval {
	if len(avoid) == 0 {
		return nil
	}
	var out []interval
	day := time.Date(w.start.Year(), w.start.Month(), w.start.Day(), 0, 0, 0, 0, w.start.Location())
	for !day.After(w.end) {
		weekday := (int(day.Weekday()) + 6) % 7
		for _, av := range avoid {
			if av.Weekday != weekday {
				continue
			}
			iv := interval{
				start: day.Add(time.Duration(av.StartMinute) * time.Minute),
				end:   day.Add(time.Duration(av.EndMinute) * time.Minute),
			}
			if iv.overlaps(w) {
				out = append(out, iv)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func subtract(parts []interval, blocker interval) []interval {
	var out []interval
	for _, p := range parts {
		if !p.overlaps(blocker) {
			out = append(out, p)
			continue
		}
		if blocker.start.After(p.start) {
			out = append(out, interval{start: p.start, end: blocker.start})
		}
		if blocker.end.Before(p.end) {
			out = append(out, interval{start: blocker.end, end: p.end})
		}
	}
	return out
}

func alignUp(t time.Time, granularity int) time.Time {
	g := int64(granularity) * 60
	sec := t.Unix()
	if rem := sec % g; rem != 0 {
		sec += g - rem
	}
	return time.Unix(sec, 0).In(t.Location())
}

func alignDown(t time.Time, granularity int) time.Time {
	g := int64(granularity) * 60
	sec := t.Unix()
	sec -= sec % g
	return time.Unix(sec, 0).In(t.Location())
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
