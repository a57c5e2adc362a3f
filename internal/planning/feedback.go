package planning

import (
	"context"

	"cognical/internal/domain"
	"cognical/internal/events"
)

// Preferences returns the stored snapshot, or defaults when none exists.
func (s *Service) Preferences(ctx context.Context, preferenceID string) (domain.PreferenceSnapshot, error) {
	return s.Learner.Load(ctx, preferenceID)
}

// UpdatePreferences overwrites the snapshot with manual settings.
func (s *Service) UpdatePreferences(ctx context.Context, preferenceID string, snap domain.PreferenceSnapshot) (domain.PreferenceSnapshot, error) {
	saved, err := s.Learner.Save(ctx, preferenceID, snap)
	if err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	s.emitKind(ctx, events.PlanningPreferencesUpdated, "preference", preferenceID, events.EventPayload{
		"preferenceId": preferenceID,
		"manual":       true,
	})
	return saved, nil
}

// RecordFeedback feeds execution outcomes to the learner and persists the
// adjusted snapshot.
func (s *Service) RecordFeedback(ctx context.Context, preferenceID string, evts []domain.FeedbackEvent) (domain.PreferenceSnapshot, error) {
	snap, err := s.Learner.IngestFeedback(ctx, preferenceID, evts)
	if err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	s.emitKind(ctx, events.PlanningPreferencesUpdated, "preference", preferenceID, events.EventPayload{
		"preferenceId": preferenceID,
		"events":       len(evts),
	})
	return snap, nil
}
