package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/types"
)

const (
	weekWindowDays  = 7
	trendWindowDays = 30
	peakHourLimit   = 3
	trendDateLayout = "Jan 2"
)

// AnalyticsRepository defines the grouped read queries behind the overview.
type AnalyticsRepository interface {
	WeekdayEnergy(ctx context.Context, userID int, from, to string) ([]types.WeekdayEnergy, error)
	CategoryCounts(ctx context.Context, userID int) ([]types.CategoryCount, error)
	DailyCounts(ctx context.Context, userID int, from, to string) ([]types.DailyCount, error)
	MoodCounts(ctx context.Context, userID int) ([]types.MoodCount, error)
	PeakHours(ctx context.Context, userID int, timezone string, limit int) ([]types.HourCount, error)
	BusiestWeekday(ctx context.Context, userID int) (int, int, error)
	WeeklySummary(ctx context.Context, userID int, from, to string) (types.WeeklySummary, error)
	Totals(ctx context.Context, userID int) (int, int, error)
	ActiveDates(ctx context.Context, userID int, upTo string) ([]string, error)
}

// AnalyticsService computes the eight per-user aggregates. Each aggregate is
// an independent query, so a concurrent write may be visible to some and not
// others.
type AnalyticsService struct {
	repo AnalyticsRepository
	loc  *time.Location
	now  func() time.Time
}

func NewAnalyticsService(repo AnalyticsRepository, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{repo: repo, loc: loc, now: time.Now}
}

func (s *AnalyticsService) Overview(ctx context.Context, userID int) (types.Analytics, error) {
	var (
		out types.Analytics
		err error
	)
	if out.WeeklyMood, err = s.WeeklyMood(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.CategoryDistribution, err = s.CategoryDistribution(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.MonthlyTrend, err = s.MonthlyTrend(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.MoodDistribution, err = s.MoodDistribution(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.PeakHours, err = s.PeakHours(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.ProductiveDay, err = s.ProductiveDay(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.WeeklySummary, err = s.WeeklySummary(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	if out.UserStats, err = s.UserStats(ctx, userID); err != nil {
		return types.Analytics{}, err
	}
	return out, nil
}

// WeeklyMood returns seven buckets, Sunday first, covering the last seven
// days including today. Weekdays without activity report zero.
func (s *AnalyticsService) WeeklyMood(ctx context.Context, userID int) ([]types.WeekdayMood, error) {
	from, to := s.window(weekWindowDays)
	rows, err := s.repo.WeekdayEnergy(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("weekly mood: %w", err)
	}
	return FillWeekdays(rows), nil
}

func (s *AnalyticsService) CategoryDistribution(ctx context.Context, userID int) ([]types.CategoryCount, error) {
	rows, err := s.repo.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("category distribution: %w", err)
	}
	for i := range rows {
		rows[i].Category = types.CategoryLabel(rows[i].Category)
	}
	return rows, nil
}

// MonthlyTrend returns one entry per day for the last thirty days, oldest
// first, labelled like "Jan 2".
func (s *AnalyticsService) MonthlyTrend(ctx context.Context, userID int) ([]types.DailyCount, error) {
	from, to := s.window(trendWindowDays)
	rows, err := s.repo.DailyCounts(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}
	return FillDays(rows, s.civilToday(), trendWindowDays), nil
}

func (s *AnalyticsService) MoodDistribution(ctx context.Context, userID int) ([]types.MoodCount, error) {
	rows, err := s.repo.MoodCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mood distribution: %w", err)
	}
	return rows, nil
}

func (s *AnalyticsService) PeakHours(ctx context.Context, userID int) ([]types.HourCount, error) {
	rows, err := s.repo.PeakHours(ctx, userID, s.loc.String(), peakHourLimit)
	if err != nil {
		return nil, fmt.Errorf("peak hours: %w", err)
	}
	return rows, nil
}

// ProductiveDay returns the weekday with the most activities, or nil when the
// user has none.
func (s *AnalyticsService) ProductiveDay(ctx context.Context, userID int) (*types.WeekdayCount, error) {
	weekday, count, err := s.repo.BusiestWeekday(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("productive day: %w", err)
	}
	return &types.WeekdayCount{Day: time.Weekday(weekday).String(), Count: count}, nil
}

func (s *AnalyticsService) WeeklySummary(ctx context.Context, userID int) (types.WeeklySummary, error) {
	from, to := s.window(weekWindowDays)
	summary, err := s.repo.WeeklySummary(ctx, userID, from, to)
	if err != nil {
		return types.WeeklySummary{}, fmt.Errorf("weekly summary: %w", err)
	}
	summary.AvgEnergy = round2(summary.AvgEnergy)
	return summary, nil
}

func (s *AnalyticsService) UserStats(ctx context.Context, userID int) (types.UserStats, error) {
	days, total, err := s.repo.Totals(ctx, userID)
	if err != nil {
		return types.UserStats{}, fmt.Errorf("user totals: %w", err)
	}

	today := s.civilToday()
	dates, err := s.repo.ActiveDates(ctx, userID, today.Format(types.DateLayout))
	if err != nil {
		return types.UserStats{}, fmt.Errorf("active dates: %w", err)
	}

	return types.UserStats{
		DaysTracked:        days,
		TotalActivities:    total,
		AvgDailyActivities: round2(float64(total) / float64(max(days, 1))),
		StreakDays:         Streak(dates, today),
	}, nil
}

// civilToday is midnight UTC of the current date in the service timezone.
// Calendar arithmetic on it is immune to DST shifts.
func (s *AnalyticsService) civilToday() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// window returns the inclusive date range of the last n days ending today.
func (s *AnalyticsService) window(n int) (string, string) {
	today := s.civilToday()
	return today.AddDate(0, 0, -(n - 1)).Format(types.DateLayout), today.Format(types.DateLayout)
}

// FillWeekdays expands sparse weekday rows into seven entries, Sunday first.
func FillWeekdays(rows []types.WeekdayEnergy) []types.WeekdayMood {
	out := make([]types.WeekdayMood, 7)
	for i := range out {
		out[i].Day = time.Weekday(i).String()[:3]
	}
	for _, row := range rows {
		if row.Weekday < 0 || row.Weekday > 6 {
			continue
		}
		out[row.Weekday].AvgEnergy = round2(row.AvgEnergy)
		out[row.Weekday].Count = row.Count
	}
	return out
}

// FillDays expands sparse YYYY-MM-DD rows into n consecutive days ending at
// today, oldest first.
func FillDays(rows []types.DailyCount, today time.Time, n int) []types.DailyCount {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Date] = row.Count
	}

	out := make([]types.DailyCount, 0, n)
	for i := n - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		out = append(out, types.DailyCount{
			Date:  day.Format(trendDateLayout),
			Count: counts[day.Format(types.DateLayout)],
		})
	}
	return out
}

// Streak counts consecutive active days ending today, or ending yesterday
// when today has no activity yet. dates must be distinct YYYY-MM-DD values,
// newest first.
func Streak(dates []string, today time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	day := today
	if dates[0] != day.Format(types.DateLayout) {
		day = day.AddDate(0, 0, -1)
		if dates[0] != day.Format(types.DateLayout) {
			return 0
		}
	}

	streak := 0
	for _, date := range dates {
		if date != day.Format(types.DateLayout) {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
