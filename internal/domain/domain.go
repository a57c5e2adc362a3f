package domain

// Task statuses. Archived and done are terminal for scheduling purposes.
const (
	StatusBacklog    = "backlog"
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
	StatusArchived   = "archived"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Dependency edge types. finish_to_start is the default.
const (
	DepFinishToStart  = "finish_to_start"
	DepStartToStart   = "start_to_start"
	DepFinishToFinish = "finish_to_finish"
	DepStartToFinish  = "start_to_finish"
)

const (
	SessionDraft     = "draft"
	SessionApplied   = "applied"
	SessionDiscarded = "discarded"
)

const (
	BlockProposed  = "proposed"
	BlockApplied   = "applied"
	BlockCompleted = "completed"
	BlockMissed    = "missed"
)

const (
	FlexFixed    = "fixed"
	FlexFlexible = "flexible"
)

type Task struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Status           string   `json:"status" enum:"backlog,todo,in_progress,blocked,done,archived"`
	Priority         string   `json:"priority" enum:"low,medium,high,urgent"`
	PlannedStartAt   *string  `json:"plannedStartAt,omitempty" format:"date-time"`
	StartAt          *string  `json:"startAt,omitempty" format:"date-time"`
	DueAt            *string  `json:"dueAt,omitempty" format:"date-time"`
	CompletedAt      *string  `json:"completedAt,omitempty" format:"date-time"`
	EstimatedMinutes *int     `json:"estimatedMinutes,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Links            []string `json:"links,omitempty"`
	IsRecurring      bool     `json:"isRecurring"`
	RecurrenceRule   *string  `json:"recurrenceRule,omitempty"`
	RecurrenceUntil  *string  `json:"recurrenceUntil,omitempty" format:"date-time"`
	CreatedAt        string   `json:"createdAt" format:"date-time"`
	UpdatedAt        string   `json:"updatedAt" format:"date-time"`
}

type Dependency struct {
	ID            string `json:"id"`
	PredecessorID string `json:"predecessorId"`
	SuccessorID   string `json:"successorId"`
	Type          string `json:"type" enum:"finish_to_start,start_to_start,finish_to_finish,start_to_finish"`
	CreatedAt     string `json:"createdAt" format:"date-time"`
}

// AvoidanceWindow is a learned do-not-schedule interval on one weekday.
// Weekday 0 is Monday.
type AvoidanceWindow struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
}

type PreferenceSnapshot struct {
	FocusStartMinute           *int              `json:"focusStartMinute,omitempty"`
	FocusEndMinute             *int              `json:"focusEndMinute,omitempty"`
	BufferMinutesBetweenBlocks int               `json:"bufferMinutesBetweenBlocks"`
	PreferCompactSchedule      bool              `json:"preferCompactSchedule"`
	AvoidanceWindows           []AvoidanceWindow `json:"avoidanceWindows,omitempty"`
}

// CalendarEvent is a fixed commitment the optimizer schedules around.
type CalendarEvent struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	StartAt string  `json:"startAt" format:"date-time"`
	EndAt   string  `json:"endAt" format:"date-time"`
	Kind    *string `json:"kind,omitempty"`
}

type TimeWindow struct {
	StartAt string `json:"startAt" format:"date-time"`
	EndAt   string `json:"endAt" format:"date-time"`
}

// Constraints is the envelope handed to the optimizer alongside tasks
// and preferences.
type Constraints struct {
	AvailableWindows      []TimeWindow    `json:"availableWindows,omitempty"`
	ExistingEvents        []CalendarEvent `json:"existingEvents,omitempty"`
	MaxFocusMinutesPerDay *int            `json:"maxFocusMinutesPerDay,omitempty"`
	PlanningStartAt       *string         `json:"planningStartAt,omitempty" format:"date-time"`
	PlanningEndAt         *string         `json:"planningEndAt,omitempty" format:"date-time"`
}

type PlanningSession struct {
	ID                    string   `json:"id"`
	TaskIDs               []string `json:"taskIds"`
	ConstraintsJSON       string   `json:"-"`
	GeneratedAt           string   `json:"generatedAt" format:"date-time"`
	Status                string   `json:"status" enum:"draft,applied,discarded"`
	SelectedOptionID      *string  `json:"selectedOptionId,omitempty"`
	PersonalizationJSON   string   `json:"-"`
	CreatedAt             string   `json:"createdAt" format:"date-time"`
	UpdatedAt             string   `json:"updatedAt" format:"date-time"`
}

// CotStep is one entry in an option's generation rationale.
type CotStep struct {
	Step    int    `json:"step"`
	Thought string `json:"thought"`
	Result  string `json:"result,omitempty"`
}

type PlanningOption struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Rank       int       `json:"rank"`
	Score      float64   `json:"score"`
	Label      string    `json:"label,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	CotSteps   []CotStep `json:"cotSteps,omitempty"`
	RiskNotes  []string  `json:"riskNotes,omitempty"`
	IsFallback bool      `json:"isFallback"`
}

type TimeBlock struct {
	ID            string   `json:"id"`
	OptionID      string   `json:"optionId"`
	TaskID        string   `json:"taskId"`
	StartAt       string   `json:"startAt" format:"date-time"`
	EndAt         string   `json:"endAt" format:"date-time"`
	Flexibility   string   `json:"flexibility" enum:"fixed,flexible"`
	Confidence    float64  `json:"confidence"`
	ConflictFlags []string `json:"conflictFlags,omitempty"`
	Status        string   `json:"status" enum:"proposed,applied,completed,missed"`
	AppliedAt     *string  `json:"appliedAt,omitempty" format:"date-time"`
	ActualStartAt *string  `json:"actualStartAt,omitempty" format:"date-time"`
	ActualEndAt   *string  `json:"actualEndAt,omitempty" format:"date-time"`
}

// Conflict is a non-fatal violation annotation, recomputed on each read.
type Conflict struct {
	Kind        string   `json:"kind"`
	Severity    string   `json:"severity" enum:"low,medium,high"`
	Description string   `json:"description"`
	BlockIDs    []string `json:"blockIds,omitempty"`
	EventID     string   `json:"eventId,omitempty"`
	TaskIDs     []string `json:"taskIds,omitempty"`
}

type CacheEntry struct {
	CacheKey     string `json:"cacheKey"`
	Operation    string `json:"operation" enum:"parse,recommend,schedule"`
	SemanticHash string `json:"semanticHash"`
	RawInput     string `json:"rawInput,omitempty"`
	ResponseJSON string `json:"responseJson"`
	CreatedAt    string `json:"createdAt" format:"date-time"`
	ExpiresAt    string `json:"expiresAt" format:"date-time"`
	HitCount     int    `json:"hitCount"`
	MetadataJSON string `json:"metadataJson,omitempty"`
}

// FeedbackEvent is one observed execution outcome fed to the learner.
type FeedbackEvent struct {
	PlannedStart string  `json:"plannedStart" format:"date-time"`
	PlannedEnd   string  `json:"plannedEnd" format:"date-time"`
	ActualStart  *string `json:"actualStart,omitempty" format:"date-time"`
	ActualEnd    *string `json:"actualEnd,omitempty" format:"date-time"`
	Completed    bool    `json:"completed"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	Payload    string `json:"payloadJson"`
}

// PriorityWeight orders priorities for ready-set sorting; higher first.
func PriorityWeight(p string) int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Terminal reports whether a task status excludes the task from scheduling.
func Terminal(status string) bool {
	return status == StatusDone || status == StatusArchived
}

func ValidStatus(s string) bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusArchived:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ValidDependencyType(t string) bool {
	switch t {
	case DepFinishToStart, DepStartToStart, DepFinishToFinish, DepStartToFinish:
		return true
	}
	return false
}
