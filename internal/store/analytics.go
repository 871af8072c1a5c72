package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lifelog/apiserver/types"
)

// AnalyticsRepository runs the grouped read-only queries behind the
// analytics overview. Dates are YYYY-MM-DD strings and windows are inclusive.
type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// WeekdayEnergy groups activities dated within [from, to] by weekday.
func (r *AnalyticsRepository) WeekdayEnergy(ctx context.Context, userID int, from, to string) ([]types.WeekdayEnergy, error) {
	const query = `
		SELECT EXTRACT(DOW FROM activity_date)::int AS weekday,
		       AVG(energy)::float8,
		       COUNT(*)
		FROM activities
		WHERE user_id = $1 AND activity_date BETWEEN $2 AND $3
		GROUP BY weekday
		ORDER BY weekday`
	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]types.WeekdayEnergy, 0, 7)
	for rows.Next() {
		var item types.WeekdayEnergy
		if err := rows.Scan(&item.Weekday, &item.AvgEnergy, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *AnalyticsRepository) CategoryCounts(ctx context.Context, userID int) ([]types.CategoryCount, error) {
	const query = `
		SELECT category, COUNT(*)
		FROM activities
		WHERE user_id = $1
		GROUP BY category
		ORDER BY category`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]types.CategoryCount, 0)
	for rows.Next() {
		var item types.CategoryCount
		if err := rows.Scan(&item.Category, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// DailyCounts returns one row per day with activities within [from, to].
func (r *AnalyticsRepository) DailyCounts(ctx context.Context, userID int, from, to string) ([]types.DailyCount, error) {
	const query = `
		SELECT to_char(activity_date, 'YYYY-MM-DD'), COUNT(*)
		FROM activities
		WHERE user_id = $1 AND activity_date BETWEEN $2 AND $3
		GROUP BY activity_date
		ORDER BY activity_date`
	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]types.DailyCount, 0, 30)
	for rows.Next() {
		var item types.DailyCount
		if err := rows.Scan(&item.Date, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *AnalyticsRepository) MoodCounts(ctx context.Context, userID int) ([]types.MoodCount, error) {
	const query = `
		SELECT mood, COUNT(*)
		FROM activities
		WHERE user_id = $1
		GROUP BY mood`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]types.MoodCount, 0)
	for rows.Next() {
		var item types.MoodCount
		if err := rows.Scan(&item.Mood, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// PeakHours returns the busiest hours of day by creation time, evaluated in
// the named timezone.
func (r *AnalyticsRepository) PeakHours(ctx context.Context, userID int, timezone string, limit int) ([]types.HourCount, error) {
	const query = `
		SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE $2)::int AS hour,
		       COUNT(*) AS total
		FROM activities
		WHERE user_id = $1
		GROUP BY 1
		ORDER BY total DESC, hour ASC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, timezone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]types.HourCount, 0, limit)
	for rows.Next() {
		var item types.HourCount
		if err := rows.Scan(&item.Hour, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// BusiestWeekday returns the weekday (Sunday = 0) with the most activities.
// ErrNotFound means the user has no activities.
func (r *AnalyticsRepository) BusiestWeekday(ctx context.Context, userID int) (int, int, error) {
	const query = `
		SELECT EXTRACT(DOW FROM activity_date)::int AS weekday, COUNT(*) AS total
		FROM activities
		WHERE user_id = $1
		GROUP BY weekday
		ORDER BY total DESC, weekday ASC
		LIMIT 1`
	var weekday, count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&weekday, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, err
	}
	return weekday, count, nil
}

func (r *AnalyticsRepository) WeeklySummary(ctx context.Context, userID int, from, to string) (types.WeeklySummary, error) {
	const query = `
		SELECT COUNT(*),
		       COALESCE(AVG(energy), 0)::float8,
		       to_char(MIN(activity_date), 'YYYY-MM-DD'),
		       to_char(MAX(activity_date), 'YYYY-MM-DD')
		FROM activities
		WHERE user_id = $1 AND activity_date BETWEEN $2 AND $3`
	var (
		summary    types.WeeklySummary
		start, end sql.NullString
	)
	if err := r.db.QueryRowContext(ctx, query, userID, from, to).Scan(
		&summary.TotalActivities,
		&summary.AvgEnergy,
		&start,
		&end,
	); err != nil {
		return types.WeeklySummary{}, err
	}
	if start.Valid {
		summary.StartDate = &start.String
	}
	if end.Valid {
		summary.EndDate = &end.String
	}
	return summary, nil
}

// Totals returns the number of distinct days with activities and the total
// number of activities.
func (r *AnalyticsRepository) Totals(ctx context.Context, userID int) (int, int, error) {
	const query = `
		SELECT COUNT(DISTINCT activity_date), COUNT(*)
		FROM activities
		WHERE user_id = $1`
	var days, total int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&days, &total); err != nil {
		return 0, 0, err
	}
	return days, total, nil
}

// ActiveDates lists the distinct activity dates on or before upTo, newest first.
func (r *AnalyticsRepository) ActiveDates(ctx context.Context, userID int, upTo string) ([]string, error) {
	const query = `
		SELECT DISTINCT to_char(activity_date, 'YYYY-MM-DD') AS day
		FROM activities
		WHERE user_id = $1 AND activity_date <= $2
		ORDER BY day DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, upTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make([]string, 0)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		dates = append(dates, day)
	}
	return dates, rows.Err()
}
