package ai

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cognical/internal/domain"
)

// HeuristicProvider is the offline default. Deterministic keyword and
// pattern extraction, no network, never errors.
type HeuristicProvider struct{}

var (
	tagPattern      = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
	durationPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(h|hr|hrs|hour|hours|m|min|mins|minute|minutes)\b`)
	datePattern     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})(?:[T ](\d{2}:\d{2}))?\b`)
)

var priorityKeywords = []struct {
	word     string
	priority string
}{
	{"urgent", domain.PriorityUrgent},
	{"asap", domain.PriorityUrgent},
	{"critical", domain.PriorityUrgent},
	{"important", domain.PriorityHigh},
	{"high priority", domain.PriorityHigh},
	{"whenever", domain.PriorityLow},
	{"someday", domain.PriorityLow},
	{"low priority", domain.PriorityLow},
}

func (HeuristicProvider) ParseTask(_ context.Context, input string) (ParsedTask, error) {
	text := strings.TrimSpace(input)
	var parsed ParsedTask

	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		parsed.Tags = append(parsed.Tags, m[1])
	}
	text = strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))

	lower := strings.ToLower(text)
	for _, kw := range priorityKeywords {
		if strings.Contains(lower, kw.word) {
			parsed.Priority = kw.priority
			break
		}
	}

	if m := durationPattern.FindStringSubmatch(text); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			minutes := int(value)
			if strings.HasPrefix(strings.ToLower(m[2]), "h") {
				minutes = int(value * 60)
			}
			if minutes > 0 {
				parsed.EstimatedMinutes = &minutes
			}
			text = strings.TrimSpace(strings.Replace(text, m[0], "", 1))
		}
	}

	if m := datePattern.FindStringSubmatch(text); m != nil {
		clock := m[2]
		if clock == "" {
			clock = "09:00"
		}
		if due, err := time.Parse(time.RFC3339, fmt.Sprintf("%sT%s:00Z", m[1], clock)); err == nil {
			formatted := due.Format(time.RFC3339)
			parsed.DueAt = &formatted
			text = strings.TrimSpace(strings.Replace(text, m[0], "", 1))
		}
	}

	lines := strings.SplitN(text, "\n", 2)
	parsed.Title = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		parsed.Description = strings.TrimSpace(lines[1])
	}
	if parsed.Title == "" {
		parsed.Title = strings.TrimSpace(input)
	}
	return parsed, nil
}

// GenerateRecommendations surfaces actionable tasks ranked by priority then
// nearest deadline. Done and archived tasks never appear.
func (HeuristicProvider) GenerateRecommendations(_ context.Context, tasks []domain.Task) ([]Recommendation, error) {
	actionable := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !domain.Terminal(t.Status) {
			actionable = append(actionable, t)
		}
	}
	sort.SliceStable(actionable, func(i, j int) bool {
		a, b := actionable[i], actionable[j]
		if wa, wb := domain.PriorityWeight(a.Priority), domain.PriorityWeight(b.Priority); wa != wb {
			return wa > wb
		}
		if ka, kb := dueKey(a), dueKey(b); ka != kb {
			return ka < kb
		}
		return a.ID < b.ID
	})

	const limit = 5
	var recs []Recommendation
	for i, t := range actionable {
		if i == limit {
			break
		}
		reason := fmt.Sprintf("%s priority", t.Priority)
		if t.DueAt != nil {
			reason += ", due " + *t.DueAt
		}
		recs = append(recs, Recommendation{
			TaskID: t.ID,
			Reason: reason,
			Score:  float64(domain.PriorityWeight(t.Priority)) / 4,
		})
	}
	return recs, nil
}

// PlanSchedule orders tasks earliest-deadline-first as advice for callers
// that want a hint without running the full optimizer.
func (p HeuristicProvider) PlanSchedule(ctx context.Context, tasks []domain.Task, _ domain.Constraints) (ScheduleAdvice, error) {
	ordered := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !domain.Terminal(t.Status) {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ka, kb := dueKey(ordered[i]), dueKey(ordered[j]); ka != kb {
			return ka < kb
		}
		if wa, wb := domain.PriorityWeight(ordered[i].Priority), domain.PriorityWeight(ordered[j].Priority); wa != wb {
			return wa > wb
		}
		return ordered[i].ID < ordered[j].ID
	})
	advice := ScheduleAdvice{}
	for _, t := range ordered {
		advice.OrderedTaskIDs = append(advice.OrderedTaskIDs, t.ID)
	}
	advice.Summary = fmt.Sprintf("%d task(s) ordered by deadline", len(advice.OrderedTaskIDs))
	return advice, nil
}

func (HeuristicProvider) Ping(context.Context) error { return nil }

func dueKey(t domain.Task) string {
	if t.DueAt == nil {
		return "￿"
	}
	return *t.DueAt
}
