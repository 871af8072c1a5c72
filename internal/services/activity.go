package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lifelog/apiserver/internal/logger"
	"github.com/lifelog/apiserver/internal/metrics"
	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/types"
)

// RecentActivityLimit caps the recent list on the dashboard summary.
const RecentActivityLimit = 5

// ActivityRepository defines persistence operations for activities. Every
// method is scoped to the owning user.
type ActivityRepository interface {
	List(ctx context.Context, userID int) ([]types.Activity, error)
	ListByDate(ctx context.Context, userID int, day string, limit int) ([]types.Activity, error)
	Get(ctx context.Context, userID, id int) (types.Activity, error)
	Create(ctx context.Context, activity types.Activity) (types.Activity, error)
	Update(ctx context.Context, activity types.Activity) (types.Activity, error)
	Delete(ctx context.Context, userID, id int) error
	DayStats(ctx context.Context, userID int, day string) (int, float64, error)
	DominantMood(ctx context.Context, userID int, day string) (string, error)
}

// EventPublisher receives a notification after every activity mutation.
type EventPublisher interface {
	Publish(ctx context.Context, event types.ActivityEvent) error
}

// ActivityInput is the client-supplied part of an activity.
type ActivityInput struct {
	Title        string
	Category     string
	Mood         string
	Energy       *int
	Note         *string
	ActivityDate string
}

func (in ActivityInput) normalize() ActivityInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Mood = strings.TrimSpace(in.Mood)
	in.ActivityDate = strings.TrimSpace(in.ActivityDate)
	if in.Note != nil {
		note := strings.TrimSpace(*in.Note)
		if note == "" {
			in.Note = nil
		} else {
			in.Note = &note
		}
	}
	return in
}

func (in ActivityInput) validate(requireDate bool) error {
	if in.Title == "" || in.Category == "" || in.Mood == "" || in.Energy == nil {
		return invalid("title, category, mood and energy are required")
	}
	if requireDate && in.ActivityDate == "" {
		return invalid("activity_date is required")
	}
	if *in.Energy < 1 || *in.Energy > 5 {
		return invalid("energy must be between 1 and 5")
	}
	if in.ActivityDate != "" {
		if _, err := time.Parse(types.DateLayout, in.ActivityDate); err != nil {
			return invalid("activity_date must be a date in YYYY-MM-DD format")
		}
	}
	return nil
}

// ActivityService implements activity CRUD and the daily dashboard summary.
type ActivityService struct {
	repo   ActivityRepository
	events EventPublisher
	loc    *time.Location
	now    func() time.Time
}

// NewActivityService builds the service. events may be nil, in which case
// mutations are not announced. "Today" is evaluated in loc.
func NewActivityService(repo ActivityRepository, events EventPublisher, loc *time.Location) *ActivityService {
	if loc == nil {
		loc = time.UTC
	}
	return &ActivityService{repo: repo, events: events, loc: loc, now: time.Now}
}

func (s *ActivityService) List(ctx context.Context, userID int) ([]types.Activity, error) {
	return s.repo.List(ctx, userID)
}

func (s *ActivityService) Get(ctx context.Context, userID, id int) (types.Activity, error) {
	return s.repo.Get(ctx, userID, id)
}

// Create stores a new activity for userID. A missing activity date defaults
// to today.
func (s *ActivityService) Create(ctx context.Context, userID int, input ActivityInput) (types.Activity, error) {
	input = input.normalize()
	if err := input.validate(false); err != nil {
		return types.Activity{}, err
	}
	if input.ActivityDate == "" {
		input.ActivityDate = s.today()
	}

	activity, err := s.repo.Create(ctx, types.Activity{
		UserID:       userID,
		Title:        input.Title,
		Category:     input.Category,
		Mood:         input.Mood,
		Energy:       *input.Energy,
		Note:         input.Note,
		ActivityDate: input.ActivityDate,
	})
	if err != nil {
		return types.Activity{}, fmt.Errorf("create activity: %w", err)
	}

	metrics.RecordActivityWrite("create")
	s.publish(ctx, types.EventActivityCreated, activity)
	return activity, nil
}

// Update replaces every mutable field of an activity owned by userID.
func (s *ActivityService) Update(ctx context.Context, userID, id int, input ActivityInput) (types.Activity, error) {
	input = input.normalize()
	if err := input.validate(true); err != nil {
		return types.Activity{}, err
	}

	activity, err := s.repo.Update(ctx, types.Activity{
		ID:           id,
		UserID:       userID,
		Title:        input.Title,
		Category:     input.Category,
		Mood:         input.Mood,
		Energy:       *input.Energy,
		Note:         input.Note,
		ActivityDate: input.ActivityDate,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Activity{}, err
		}
		return types.Activity{}, fmt.Errorf("update activity: %w", err)
	}

	metrics.RecordActivityWrite("update")
	s.publish(ctx, types.EventActivityUpdated, activity)
	return activity, nil
}

func (s *ActivityService) Delete(ctx context.Context, userID, id int) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete activity: %w", err)
	}

	metrics.RecordActivityWrite("delete")
	s.publish(ctx, types.EventActivityDeleted, types.Activity{ID: id, UserID: userID})
	return nil
}

// DashboardSummary describes today's activities for userID.
func (s *ActivityService) DashboardSummary(ctx context.Context, userID int) (types.DashboardSummary, error) {
	today := s.today()

	total, avgEnergy, err := s.repo.DayStats(ctx, userID, today)
	if err != nil {
		return types.DashboardSummary{}, fmt.Errorf("day stats: %w", err)
	}

	summary := types.DashboardSummary{
		TotalActivities: total,
		AverageEnergy:   round2(avgEnergy),
	}

	mood, err := s.repo.DominantMood(ctx, userID, today)
	switch {
	case err == nil:
		summary.DominantMood = &mood
	case !errors.Is(err, store.ErrNotFound):
		return types.DashboardSummary{}, fmt.Errorf("dominant mood: %w", err)
	}

	summary.RecentActivities, err = s.repo.ListByDate(ctx, userID, today, RecentActivityLimit)
	if err != nil {
		return types.DashboardSummary{}, fmt.Errorf("recent activities: %w", err)
	}
	return summary, nil
}

func (s *ActivityService) today() string {
	return s.now().In(s.loc).Format(types.DateLayout)
}

// publish never fails the caller; the write has already been committed.
func (s *ActivityService) publish(ctx context.Context, eventType string, activity types.Activity) {
	if s.events == nil {
		return
	}

	event := types.ActivityEvent{
		Type:       eventType,
		ActivityID: activity.ID,
		UserID:     activity.UserID,
		OccurredAt: s.now().UTC(),
	}
	if eventType != types.EventActivityDeleted {
		event.Activity = &activity
	}

	if err := s.events.Publish(ctx, event); err != nil {
		metrics.RecordEventPublished(false)
		logger.Warn("activity.event.publish_failed", "type", eventType, "activity_id", activity.ID, "err", err)
		return
	}
	metrics.RecordEventPublished(true)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
