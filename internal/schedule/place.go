package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cognical/internal/domain"
)

type placement struct {
	task  domain.Task
	iv    interval
	split bool
}

type placer struct {
	in          *Input
	runs        []interval
	events      []fixedEvent
	granularity int
	buffer      int
	dayLastEnd  map[string]time.Time
	dayMinutes  map[string]int
}

func placeOption(in *Input, label string, ordered []domain.Task, windows []interval, events []fixedEvent) Option {
	p := &placer{
		in:          in,
		runs:        freeRuns(windows, in.Preferences, events, in.GranularityMinutes),
		events:      events,
		granularity: in.GranularityMinutes,
		buffer:      in.Preferences.BufferMinutesBetweenBlocks,
		dayLastEnd:  map[string]time.Time{},
		dayMinutes:  map[string]int{},
	}

	var placements []placement
	var riskNotes []string
	for _, t := range ordered {
		need := estimateOf(t)
		if iv, ok := p.fit(need); ok {
			p.consume(iv)
			placements = append(placements, placement{task: t, iv: iv})
			continue
		}
		chunks, remaining := p.fitSplit(need)
		for _, iv := range chunks {
			placements = append(placements, placement{task: t, iv: iv, split: true})
		}
		if remaining == need {
			riskNotes = append(riskNotes, fmt.Sprintf("task %q deferred: no feasible slot", t.Title))
		} else if remaining > 0 {
			riskNotes = append(riskNotes, fmt.Sprintf("task %q only partially scheduled: %d minute(s) unplaced", t.Title, remaining))
		}
	}

	blocks := p.buildBlocks(placements)
	riskNotes = append(riskNotes, deadlineRiskNotes(placements)...)

	opt := Option{
		Label:     label,
		Blocks:    blocks,
		RiskNotes: riskNotes,
		CotSteps: []domain.CotStep{
			{Step: 1, Thought: "order tasks by " + label, Result: fmt.Sprintf("%d task(s) ordered", len(ordered))},
			{Step: 2, Thought: fmt.Sprintf("place greedily on a %d-minute grid with %d-minute buffers", p.granularity, p.buffer), Result: fmt.Sprintf("%d block(s) placed", len(blocks))},
			{Step: 3, Thought: "collect residual risks", Result: fmt.Sprintf("%d note(s)", len(riskNotes))},
		},
	}
	opt.Summary = summarize(placements, blocks)
	opt.Score = scoreOption(in, blocks, ordered, events)
	return opt
}

// fit finds the earliest run holding the whole duration, honoring the
// inter-block buffer on the same day and the daily focus cap.
func (p *placer) fit(minutes int) (interval, bool) {
	dur := time.Duration(minutes) * time.Minute
	for _, run := range p.runs {
		candidate := run.start
		day := dayKey(candidate)
		if last, ok := p.dayLastEnd[day]; ok {
			buffered := last.Add(time.Duration(p.buffer) * time.Minute)
			if buffered.After(candidate) {
				candidate = alignUp(buffered, p.granularity)
			}
		}
		if candidate.Add(dur).After(run.end) {
			continue
		}
		if !p.capAllows(day, minutes) {
			continue
		}
		return interval{start: candidate, end: candidate.Add(dur)}, true
	}
	return interval{}, false
}

// fitSplit places the duration in grid-sized chunks across runs. Chunks
// stay at or above the split floor except for a smaller final remainder.
func (p *placer) fitSplit(minutes int) ([]interval, int) {
	remaining := minutes
	var chunks []interval
	for remaining > 0 {
		chunk, ok := p.fitChunk(remaining)
		if !ok {
			break
		}
		p.consume(chunk)
		chunks = append(chunks, chunk)
		remaining -= chunk.minutes()
	}
	return chunks, remaining
}

func (p *placer) fitChunk(remaining int) (interval, bool) {
	for _, run := range p.runs {
		candidate := run.start
		day := dayKey(candidate)
		if last, ok := p.dayLastEnd[day]; ok {
			buffered := last.Add(time.Duration(p.buffer) * time.Minute)
			if buffered.After(candidate) {
				candidate = alignUp(buffered, p.granularity)
			}
		}
		if !candidate.Before(run.end) {
			continue
		}
		avail := int(run.end.Sub(candidate).Minutes())
		avail -= avail % p.granularity
		if avail <= 0 {
			continue
		}
		size := avail
		if size > remaining {
			size = remaining
		}
		if size < minSplitChunkMinutes && size < remaining {
			continue
		}
		if !p.capAllows(day, size) {
			continue
		}
		return interval{start: candidate, end: candidate.Add(time.Duration(size) * time.Minute)}, true
	}
	return interval{}, false
}

func (p *placer) capAllows(day string, minutes int) bool {
	limit := p.in.Constraints.MaxFocusMinutesPerDay
	if limit == nil {
		return true
	}
	return p.dayMinutes[day]+minutes <= *limit
}

func (p *placer) consume(iv interval) {
	p.runs = subtract(p.runs, iv)
	day := dayKey(iv.start)
	if last, ok := p.dayLastEnd[day]; !ok || iv.end.After(last) {
		p.dayLastEnd[day] = iv.end
	}
	p.dayMinutes[day] += iv.minutes()
}

func (p *placer) buildBlocks(placements []placement) []domain.TimeBlock {
	sort.SliceStable(placements, func(i, j int) bool {
		if !placements[i].iv.start.Equal(placements[j].iv.start) {
			return placements[i].iv.start.Before(placements[j].iv.start)
		}
		return placements[i].task.ID < placements[j].task.ID
	})
	blocks := make([]domain.TimeBlock, 0, len(placements))
	for _, pl := range placements {
		b := domain.TimeBlock{
			TaskID:      pl.task.ID,
			StartAt:     pl.iv.start.Format(time.RFC3339),
			EndAt:       pl.iv.end.Format(time.RFC3339),
			Flexibility: domain.FlexFlexible,
			Status:      domain.BlockProposed,
		}
		dur := pl.iv.minutes()
		deadlineRisk := false
		if pl.task.DueAt != nil {
			if due, err := parseRFC3339(*pl.task.DueAt); err == nil && pl.iv.end.After(due) {
				deadlineRisk = true
			}
		}
		if pl.split {
			b.ConflictFlags = append(b.ConflictFlags, FlagSplitTask)
		}
		if deadlineRisk {
			b.ConflictFlags = append(b.ConflictFlags, FlagDeadlineRisk)
		}
		if dur > longSessionMinutes {
			b.ConflictFlags = append(b.ConflictFlags, FlagLongSession)
		}
		for _, e := range p.events {
			if !e.immovable && pl.iv.overlaps(e.interval) {
				b.ConflictFlags = append(b.ConflictFlags, FlagCalendarOverlap)
				break
			}
		}
		b.Confidence = confidence(dur, p.buffer, deadlineRisk)
		blocks = append(blocks, b)
	}
	return blocks
}

// confidence starts optimistic and pays for long sessions, thin buffers and
// deadline pressure.
func confidence(durationMinutes, buffer int, deadlineRisk bool) float64 {
	c := 0.85
	if durationMinutes > longSessionMinutes {
		c -= 0.1
	}
	if buffer < 10 {
		c -= 0.05
	}
	if deadlineRisk {
		c -= 0.2
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

func deadlineRiskNotes(placements []placement) []string {
	var notes []string
	seen := map[string]bool{}
	for _, pl := range placements {
		if pl.task.DueAt == nil || seen[pl.task.ID] {
			continue
		}
		due, err := parseRFC3339(*pl.task.DueAt)
		if err != nil {
			continue
		}
		if pl.iv.end.After(due) {
			notes = append(notes, fmt.Sprintf("task %q is scheduled past its due date", pl.task.Title))
			seen[pl.task.ID] = true
		}
	}
	return notes
}

func summarize(placements []placement, blocks []domain.TimeBlock) string {
	var titles []string
	seen := map[string]bool{}
	for _, pl := range placements {
		if seen[pl.task.ID] {
			continue
		}
		seen[pl.task.ID] = true
		titles = append(titles, pl.task.Title)
	}
	if len(blocks) == 0 {
		return "no blocks placed"
	}
	return fmt.Sprintf("%d block(s) covering %s", len(blocks), strings.Join(titles, ", "))
}
