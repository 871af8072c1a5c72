package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lifelog/apiserver/types"
)

const activityColumns = `id, user_id, title, category, mood, energy, note,
		       to_char(activity_date, 'YYYY-MM-DD'), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ActivityRepository handles persistence for activities. Every query is
// scoped to the owning user.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) List(ctx context.Context, userID int) ([]types.Activity, error) {
	const query = `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

// ListByDate returns the newest activities dated on day, at most limit rows.
func (r *ActivityRepository) ListByDate(ctx context.Context, userID int, day string, limit int) ([]types.Activity, error) {
	const query = `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = $1 AND activity_date = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, day, limit)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

func (r *ActivityRepository) Get(ctx context.Context, userID, id int) (types.Activity, error) {
	const query = `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE id = $1 AND user_id = $2`
	return scanActivity(r.db.QueryRowContext(ctx, query, id, userID))
}

// Create inserts an activity and returns the stored row, so timestamps carry
// the precision postgres keeps.
func (r *ActivityRepository) Create(ctx context.Context, activity types.Activity) (types.Activity, error) {
	now := time.Now()

	const query = `
		INSERT INTO activities (user_id, title, category, mood, energy, note, activity_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ` + activityColumns
	return scanActivity(r.db.QueryRowContext(
		ctx,
		query,
		activity.UserID,
		activity.Title,
		activity.Category,
		activity.Mood,
		activity.Energy,
		activity.Note,
		activity.ActivityDate,
		now,
	))
}

// Update replaces the mutable fields of an activity owned by activity.UserID
// and returns the stored row.
func (r *ActivityRepository) Update(ctx context.Context, activity types.Activity) (types.Activity, error) {
	const query = `
		UPDATE activities
		SET title = $1,
			category = $2,
			mood = $3,
			energy = $4,
			note = $5,
			activity_date = $6,
			updated_at = $7
		WHERE id = $8 AND user_id = $9
		RETURNING ` + activityColumns
	return scanActivity(r.db.QueryRowContext(
		ctx,
		query,
		activity.Title,
		activity.Category,
		activity.Mood,
		activity.Energy,
		activity.Note,
		activity.ActivityDate,
		time.Now(),
		activity.ID,
		activity.UserID,
	))
}

func (r *ActivityRepository) Delete(ctx context.Context, userID, id int) error {
	const query = `DELETE FROM activities WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DayStats returns the number of activities dated on day and their average
// energy, which is 0 when there are none.
func (r *ActivityRepository) DayStats(ctx context.Context, userID int, day string) (int, float64, error) {
	const query = `
		SELECT COUNT(*), COALESCE(AVG(energy), 0)::float8
		FROM activities
		WHERE user_id = $1 AND activity_date = $2`
	var (
		count int
		avg   float64
	)
	if err := r.db.QueryRowContext(ctx, query, userID, day).Scan(&count, &avg); err != nil {
		return 0, 0, err
	}
	return count, avg, nil
}

// DominantMood returns the most frequent mood on day. Ties resolve to the
// alphabetically first mood. ErrNotFound means no activity on that day.
func (r *ActivityRepository) DominantMood(ctx context.Context, userID int, day string) (string, error) {
	const query = `
		SELECT mood
		FROM activities
		WHERE user_id = $1 AND activity_date = $2
		GROUP BY mood
		ORDER BY COUNT(*) DESC, mood ASC
		LIMIT 1`
	var mood string
	if err := r.db.QueryRowContext(ctx, query, userID, day).Scan(&mood); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return mood, nil
}

func scanActivity(row rowScanner) (types.Activity, error) {
	var activity types.Activity
	err := row.Scan(
		&activity.ID,
		&activity.UserID,
		&activity.Title,
		&activity.Category,
		&activity.Mood,
		&activity.Energy,
		&activity.Note,
		&activity.ActivityDate,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Activity{}, ErrNotFound
		}
		return types.Activity{}, err
	}
	return activity, nil
}

func collectActivities(rows *sql.Rows) ([]types.Activity, error) {
	defer rows.Close()

	activities := make([]types.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}
