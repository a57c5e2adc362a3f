// Package behavior maintains per-user scheduling preferences and refines
// them from observed execution feedback.
package behavior

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/domain"
	"cognical/internal/repo"
)

const DefaultPreferenceID = "default"

const (
	minCompletionRate  = 0.6
	minFailureRate     = 0.6
	minAvoidanceEvents = 3
	slippageFloor      = 10
	bufferCeiling      = 90
	avoidancePadding   = 30
	minutesPerDay      = 24 * 60
)

type Learner struct {
	Repo repo.Repo
	Now  func() time.Time
}

func New(r repo.Repo) *Learner {
	return &Learner{Repo: r, Now: time.Now}
}

// Default is the snapshot used before any feedback has been observed.
func Default() domain.PreferenceSnapshot {
	return domain.PreferenceSnapshot{}
}

// Load returns the stored snapshot for preferenceID, or the default.
func (l *Learner) Load(ctx context.Context, preferenceID string) (domain.PreferenceSnapshot, error) {
	if preferenceID == "" {
		preferenceID = DefaultPreferenceID
	}
	payload, err := l.Repo.GetPreferenceSnapshot(ctx, preferenceID)
	if errors.Is(err, repo.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return domain.PreferenceSnapshot{}, apperr.FromDB("load preferences", err)
	}
	var snap domain.PreferenceSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.PreferenceSnapshot{}, apperr.Serialization("decode preference snapshot", err)
	}
	return snap, nil
}

// Save validates, normalizes and persists a snapshot verbatim. Used by the
// preferences-update pass-through.
func (l *Learner) Save(ctx context.Context, preferenceID string, snap domain.PreferenceSnapshot) (domain.PreferenceSnapshot, error) {
	if preferenceID == "" {
		preferenceID = DefaultPreferenceID
	}
	if err := validateSnapshot(&snap); err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	snap.AvoidanceWindows = mergeAllWindows(snap.AvoidanceWindows)
	if err := l.persist(ctx, preferenceID, snap); err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	return snap, nil
}

func (l *Learner) persist(ctx context.Context, preferenceID string, snap domain.PreferenceSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return apperr.Serialization("encode preference snapshot", err)
	}
	now := l.Now().UTC().Format(time.RFC3339)
	if err := l.Repo.UpsertPreferenceSnapshot(ctx, preferenceID, string(payload), now); err != nil {
		return apperr.FromDB("save preferences", err)
	}
	return nil
}

// SnapshotForPlanning serializes the snapshot into the constraint envelope
// handed to the optimizer.
func (l *Learner) SnapshotForPlanning(ctx context.Context, preferenceID string) (domain.PreferenceSnapshot, string, error) {
	snap, err := l.Load(ctx, preferenceID)
	if err != nil {
		return domain.PreferenceSnapshot{}, "", err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return domain.PreferenceSnapshot{}, "", apperr.Serialization("encode preference snapshot", err)
	}
	return snap, string(payload), nil
}

func validateSnapshot(s *domain.PreferenceSnapshot) error {
	if s.FocusStartMinute != nil || s.FocusEndMinute != nil {
		if s.FocusStartMinute == nil || s.FocusEndMinute == nil {
			return apperr.Validation("focus window requires both start and end minutes")
		}
		if *s.FocusStartMinute < 0 || *s.FocusEndMinute > minutesPerDay || *s.FocusStartMinute >= *s.FocusEndMinute {
			return apperr.Validation("focus window minutes out of range")
		}
	}
	if s.BufferMinutesBetweenBlocks < 0 || s.BufferMinutesBetweenBlocks > bufferCeiling {
		return apperr.Validationf("buffer minutes must be between 0 and %d", bufferCeiling)
	}
	for _, w := range s.AvoidanceWindows {
		if w.Weekday < 0 || w.Weekday > 6 {
			return apperr.Validationf("avoidance weekday %d out of range", w.Weekday)
		}
		if w.StartMinute < 0 || w.EndMinute > minutesPerDay || w.StartMinute >= w.EndMinute {
			return apperr.Validation("avoidance window minutes out of range")
		}
	}
	return nil
}

// parsedEvent is a feedback event with all timestamps resolved.
type parsedEvent struct {
	plannedStart time.Time
	plannedEnd   time.Time
	actualStart  *time.Time
	actualEnd    *time.Time
	completed    bool
	weekday      int
}

// IngestFeedback applies the three learning passes in one transaction over
// the snapshot document: focus window, inter-block buffer, avoidance
// windows. Malformed timestamps fail the whole ingest, no partial update.
func (l *Learner) IngestFeedback(ctx context.Context, preferenceID string, events []domain.FeedbackEvent) (domain.PreferenceSnapshot, error) {
	if preferenceID == "" {
		preferenceID = DefaultPreferenceID
	}
	parsed, err := parseEvents(events)
	if err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	snap, err := l.Load(ctx, preferenceID)
	if err != nil {
		return domain.PreferenceSnapshot{}, err
	}

	updateFocusWindow(&snap, parsed)
	updateBuffer(&snap, parsed)
	updateAvoidance(&snap, parsed)

	if err := l.persist(ctx, preferenceID, snap); err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	return snap, nil
}

func parseEvents(events []domain.FeedbackEvent) ([]parsedEvent, error) {
	parsed := make([]parsedEvent, 0, len(events))
	for _, e := range events {
		ps, err := time.Parse(time.RFC3339, e.PlannedStart)
		if err != nil {
			return nil, apperr.Validation("plannedStart is not a valid RFC3339 timestamp")
		}
		pe, err := time.Parse(time.RFC3339, e.PlannedEnd)
		if err != nil {
			return nil, apperr.Validation("plannedEnd is not a valid RFC3339 timestamp")
		}
		p := parsedEvent{plannedStart: ps, plannedEnd: pe, completed: e.Completed, weekday: mondayWeekday(ps)}
		if e.ActualStart != nil {
			as, err := time.Parse(time.RFC3339, *e.ActualStart)
			if err != nil {
				return nil, apperr.Validation("actualStart is not a valid RFC3339 timestamp")
			}
			p.actualStart = &as
		}
		if e.ActualEnd != nil {
			ae, err := time.Parse(time.RFC3339, *e.ActualEnd)
			if err != nil {
				return nil, apperr.Validation("actualEnd is not a valid RFC3339 timestamp")
			}
			p.actualEnd = &ae
		}
		parsed = append(parsed, p)
	}
	return parsed, nil
}

// mondayWeekday maps time.Weekday onto 0=Monday .. 6=Sunday.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// updateFocusWindow picks the weekday with the best completion rate at or
// above the threshold and records its mean planned start/end minutes.
func updateFocusWindow(snap *domain.PreferenceSnapshot, events []parsedEvent) {
	type stats struct {
		total, completed, startSum, endSum int
	}
	byDay := map[int]*stats{}
	for _, e := range events {
		s := byDay[e.weekday]
		if s == nil {
			s = &stats{}
			byDay[e.weekday] = s
		}
		s.total++
		if e.completed {
			s.completed++
		}
		s.startSum += minuteOfDay(e.plannedStart)
		s.endSum += minuteOfDay(e.plannedEnd)
	}
	bestRate := 0.0
	bestDay := -1
	for day := 0; day <= 6; day++ {
		s := byDay[day]
		if s == nil || s.total == 0 {
			continue
		}
		rate := float64(s.completed) / float64(s.total)
		if rate >= minCompletionRate && rate > bestRate {
			bestRate = rate
			bestDay = day
		}
	}
	if bestDay < 0 {
		return
	}
	s := byDay[bestDay]
	start := s.startSum / s.total
	end := s.endSum / s.total
	if start >= end {
		return
	}
	snap.FocusStartMinute = &start
	snap.FocusEndMinute = &end
}

// updateBuffer widens the inter-block buffer by the median slippage over
// events that ran late by more than the floor.
func updateBuffer(snap *domain.PreferenceSnapshot, events []parsedEvent) {
	var slippages []int
	for _, e := range events {
		if e.actualStart == nil || e.actualEnd == nil {
			continue
		}
		startSlip := int(e.actualStart.Sub(e.plannedStart).Minutes())
		endSlip := int(e.actualEnd.Sub(e.plannedEnd).Minutes())
		slip := startSlip
		if endSlip > slip {
			slip = endSlip
		}
		if slip > slippageFloor {
			slippages = append(slippages, slip)
		}
	}
	if len(slippages) == 0 {
		return
	}
	base := snap.BufferMinutesBetweenBlocks
	if base < slippageFloor {
		base = slippageFloor
	}
	next := base + median(slippages)
	if next > bufferCeiling {
		next = bufferCeiling
	}
	if next < 0 {
		next = 0
	}
	snap.BufferMinutesBetweenBlocks = next
}

func median(values []int) int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// updateAvoidance emits a padded window around the failing events of any
// weekday with enough observations and a high failure rate, then merges it
// into the existing set.
func updateAvoidance(snap *domain.PreferenceSnapshot, events []parsedEvent) {
	type stats struct {
		total, failed, startSum, endSum int
	}
	byDay := map[int]*stats{}
	for _, e := range events {
		s := byDay[e.weekday]
		if s == nil {
			s = &stats{}
			byDay[e.weekday] = s
		}
		s.total++
		if !e.completed {
			s.failed++
			s.startSum += minuteOfDay(e.plannedStart)
			s.endSum += minuteOfDay(e.plannedEnd)
		}
	}
	var candidates []domain.AvoidanceWindow
	for day := 0; day <= 6; day++ {
		s := byDay[day]
		if s == nil || s.total < minAvoidanceEvents || s.failed == 0 {
			continue
		}
		if float64(s.failed)/float64(s.total) < minFailureRate {
			continue
		}
		start := s.startSum/s.failed - avoidancePadding
		end := s.endSum/s.failed + avoidancePadding
		if start < 0 {
			start = 0
		}
		if end > minutesPerDay {
			end = minutesPerDay
		}
		if start >= end {
			continue
		}
		candidates = append(candidates, domain.AvoidanceWindow{Weekday: day, StartMinute: start, EndMinute: end})
	}
	if len(candidates) == 0 {
		return
	}
	snap.AvoidanceWindows = mergeAllWindows(append(snap.AvoidanceWindows, candidates...))
}

// mergeAllWindows coalesces overlapping windows per weekday and returns them
// sorted by (weekday, start).
func mergeAllWindows(windows []domain.AvoidanceWindow) []domain.AvoidanceWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := append([]domain.AvoidanceWindow(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Weekday != sorted[j].Weekday {
			return sorted[i].Weekday < sorted[j].Weekday
		}
		return sorted[i].StartMinute < sorted[j].StartMinute
	})
	var merged []domain.AvoidanceWindow
	for _, w := range sorted {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Weekday == w.Weekday && w.StartMinute <= last.EndMinute {
				if w.EndMinute > last.EndMinute {
					last.EndMinute = w.EndMinute
				}
				continue
			}
		}
		merged = append(merged, w)
	}
	return merged
}
