package task

// Field is a three-state patch value: left alone, cleared, or set.
// The zero value means "unchanged".
type Field[T any] struct {
	set   bool
	clear bool
	value T
}

func Set[T any](v T) Field[T] { return Field[T]{set: true, value: v} }

func Clear[T any]() Field[T] { return Field[T]{clear: true} }

func (f Field[T]) Unchanged() bool { return !f.set && !f.clear }

func (f Field[T]) Cleared() bool { return f.clear }

func (f Field[T]) Get() (T, bool) { return f.value, f.set }

// Patch carries partial task updates. Clearing a required field is a
// validation error caught on the post-state.
type Patch struct {
	Title            Field[string]
	Description      Field[string]
	Status           Field[string]
	Priority         Field[string]
	PlannedStartAt   Field[string]
	StartAt          Field[string]
	DueAt            Field[string]
	CompletedAt      Field[string]
	EstimatedMinutes Field[int]
	Tags             Field[[]string]
	Links            Field[[]string]
	IsRecurring      Field[bool]
	RecurrenceRule   Field[string]
	RecurrenceUntil  Field[string]
}

func applyString(f Field[string], dst *string) {
	if v, ok := f.Get(); ok {
		*dst = v
	}
}

func applyOptString(f Field[string], dst **string) {
	if f.Cleared() {
		*dst = nil
		return
	}
	if v, ok := f.Get(); ok {
		*dst = &v
	}
}
