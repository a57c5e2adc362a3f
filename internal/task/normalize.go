package task

import (
	"strings"
	"time"
	"unicode/utf8"

	"cognical/internal/apperr"
	"cognical/internal/domain"
)

const (
	maxTitleLen        = 160
	maxTags            = 30
	maxTagLen          = 32
	maxLinks           = 20
	maxEstimateMinutes = 30 * 24 * 60
)

// Normalize trims and canonicalizes a task in place. Idempotent:
// normalizing twice equals normalizing once.
func Normalize(t *domain.Task) {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.Status = strings.ToLower(strings.TrimSpace(t.Status))
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	t.Priority = strings.ToLower(strings.TrimSpace(t.Priority))
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	t.Tags = dedupeTags(t.Tags)
	t.Links = trimNonEmpty(t.Links)
	dropEmptyOpt(&t.PlannedStartAt)
	dropEmptyOpt(&t.StartAt)
	dropEmptyOpt(&t.DueAt)
	dropEmptyOpt(&t.CompletedAt)
	dropEmptyOpt(&t.RecurrenceRule)
	dropEmptyOpt(&t.RecurrenceUntil)
}

// dedupeTags drops blanks and case-insensitive duplicates, preserving the
// first casing seen.
func dedupeTags(tags []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

func trimNonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

func dropEmptyOpt(v **string) {
	if *v == nil {
		return
	}
	trimmed := strings.TrimSpace(**v)
	if trimmed == "" {
		*v = nil
		return
	}
	*v = &trimmed
}

// Validate checks a normalized task against the data-model invariants.
func Validate(t *domain.Task) error {
	if t.Title == "" {
		return apperr.Validation("title must not be empty")
	}
	if utf8.RuneCountInString(t.Title) > maxTitleLen {
		return apperr.Validationf("title exceeds %d characters", maxTitleLen)
	}
	if !domain.ValidStatus(t.Status) {
		return apperr.Validationf("unknown status %q", t.Status)
	}
	if !domain.ValidPriority(t.Priority) {
		return apperr.Validationf("unknown priority %q", t.Priority)
	}
	if t.EstimatedMinutes != nil {
		if *t.EstimatedMinutes <= 0 {
			return apperr.Validation("estimated minutes must be positive")
		}
		if *t.EstimatedMinutes > maxEstimateMinutes {
			return apperr.Validationf("estimated minutes exceeds %d", maxEstimateMinutes)
		}
	}
	if len(t.Tags) > maxTags {
		return apperr.Validationf("at most %d tags allowed", maxTags)
	}
	for _, tag := range t.Tags {
		if utf8.RuneCountInString(tag) > maxTagLen {
			return apperr.Validationf("tag %q exceeds %d characters", tag, maxTagLen)
		}
	}
	if len(t.Links) > maxLinks {
		return apperr.Validationf("at most %d links allowed", maxLinks)
	}
	for _, link := range t.Links {
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			return apperr.Validationf("link %q must start with http:// or https://", link)
		}
	}
	if t.IsRecurring != (t.RecurrenceRule != nil) {
		if t.IsRecurring {
			return apperr.Validation("recurring tasks require a recurrence rule")
		}
		return apperr.Validation("recurrence rule set on a non-recurring task")
	}
	start, err := parseOptTime(t.StartAt, "startAt")
	if err != nil {
		return err
	}
	due, err := parseOptTime(t.DueAt, "dueAt")
	if err != nil {
		return err
	}
	if _, err := parseOptTime(t.PlannedStartAt, "plannedStartAt"); err != nil {
		return err
	}
	if _, err := parseOptTime(t.CompletedAt, "completedAt"); err != nil {
		return err
	}
	if _, err := parseOptTime(t.RecurrenceUntil, "recurrenceUntil"); err != nil {
		return err
	}
	if start != nil && due != nil && due.Before(*start) {
		return apperr.Validation("due date must not be before start date")
	}
	return nil
}

func parseOptTime(v *string, field string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, apperr.Validationf("%s is not a valid RFC3339 timestamp", field)
	}
	return &ts, nil
}
