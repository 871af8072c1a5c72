package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/internal/testsupport"
	"github.com/lifelog/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalytics struct {
	weekday    []types.WeekdayEnergy
	categories []types.CategoryCount
	daily      []types.DailyCount
	moods      []types.MoodCount
	hours      []types.HourCount
	busiestDay int
	busiestN   int
	busiestErr error
	weekly     types.WeeklySummary
	days       int
	total      int
	active     []string
	err        error

	windows  [][2]string
	timezone string
	upTo     string
}

func (s *stubAnalytics) WeekdayEnergy(_ context.Context, _ int, from, to string) ([]types.WeekdayEnergy, error) {
	s.windows = append(s.windows, [2]string{from, to})
	return s.weekday, s.err
}

func (s *stubAnalytics) CategoryCounts(context.Context, int) ([]types.CategoryCount, error) {
	return s.categories, s.err
}

func (s *stubAnalytics) DailyCounts(_ context.Context, _ int, from, to string) ([]types.DailyCount, error) {
	s.windows = append(s.windows, [2]string{from, to})
	return s.daily, s.err
}

func (s *stubAnalytics) MoodCounts(context.Context, int) ([]types.MoodCount, error) {
	return s.moods, s.err
}

func (s *stubAnalytics) PeakHours(_ context.Context, _ int, timezone string, _ int) ([]types.HourCount, error) {
	s.timezone = timezone
	return s.hours, s.err
}

func (s *stubAnalytics) BusiestWeekday(context.Context, int) (int, int, error) {
	return s.busiestDay, s.busiestN, s.busiestErr
}

func (s *stubAnalytics) WeeklySummary(_ context.Context, _ int, from, to string) (types.WeeklySummary, error) {
	s.windows = append(s.windows, [2]string{from, to})
	return s.weekly, s.err
}

func (s *stubAnalytics) Totals(context.Context, int) (int, int, error) {
	return s.days, s.total, s.err
}

func (s *stubAnalytics) ActiveDates(_ context.Context, _ int, upTo string) ([]string, error) {
	s.upTo = upTo
	return s.active, s.err
}

func newAnalyticsService(repo AnalyticsRepository) *AnalyticsService {
	svc := NewAnalyticsService(repo, time.UTC)
	// Friday
	svc.now = fixedClock(time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC))
	return svc
}

func TestOverviewAssemblesAllAggregates(t *testing.T) {
	start, end := "2026-10-12", "2026-10-16"
	repo := &stubAnalytics{
		weekday:    []types.WeekdayEnergy{{Weekday: 5, AvgEnergy: 3.666666, Count: 3}},
		categories: []types.CategoryCount{{Category: "olahraga", Count: 2}, {Category: "hobi", Count: 1}},
		daily:      []types.DailyCount{{Date: "2026-10-16", Count: 3}, {Date: "2026-09-17", Count: 1}},
		moods:      []types.MoodCount{{Mood: "happy", Count: 4}},
		hours:      []types.HourCount{{Hour: 7, Count: 3}},
		busiestDay: 1,
		busiestN:   9,
		weekly:     types.WeeklySummary{TotalActivities: 4, AvgEnergy: 3.256, StartDate: &start, EndDate: &end},
		days:       3,
		total:      10,
		active:     []string{"2026-10-16", "2026-10-15", "2026-10-13"},
	}

	out, err := newAnalyticsService(repo).Overview(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, out.WeeklyMood, 7)
	assert.Equal(t, types.WeekdayMood{Day: "Fri", AvgEnergy: 3.67, Count: 3}, out.WeeklyMood[5])
	assert.Equal(t, types.WeekdayMood{Day: "Sun"}, out.WeeklyMood[0])

	assert.Equal(t, []types.CategoryCount{{Category: "Exercise", Count: 2}, {Category: "hobi", Count: 1}}, out.CategoryDistribution)

	require.Len(t, out.MonthlyTrend, 30)
	assert.Equal(t, types.DailyCount{Date: "Sep 17", Count: 1}, out.MonthlyTrend[0])
	assert.Equal(t, types.DailyCount{Date: "Oct 16", Count: 3}, out.MonthlyTrend[29])

	assert.Equal(t, repo.moods, out.MoodDistribution)
	assert.Equal(t, repo.hours, out.PeakHours)
	assert.Equal(t, "UTC", repo.timezone)

	require.NotNil(t, out.ProductiveDay)
	assert.Equal(t, types.WeekdayCount{Day: "Monday", Count: 9}, *out.ProductiveDay)

	assert.Equal(t, 4, out.WeeklySummary.TotalActivities)
	assert.Equal(t, 3.26, out.WeeklySummary.AvgEnergy)

	assert.Equal(t, types.UserStats{DaysTracked: 3, TotalActivities: 10, AvgDailyActivities: 3.33, StreakDays: 2}, out.UserStats)
	assert.Equal(t, "2026-10-16", repo.upTo)

	assert.Equal(t, [][2]string{
		{"2026-10-10", "2026-10-16"},
		{"2026-09-17", "2026-10-16"},
		{"2026-10-10", "2026-10-16"},
	}, repo.windows)
}

func TestWeeklyMoodBucketsOnlyActiveWeekdays(t *testing.T) {
	activities := testsupport.NewActivities()
	activities.Seed(types.Activity{UserID: 1, Title: "Run", Category: "olahraga", Mood: "happy", Energy: 4, ActivityDate: "2026-10-16"})
	activities.Seed(types.Activity{UserID: 1, Title: "Read", Category: "belajar", Mood: "calm", Energy: 2, ActivityDate: "2026-10-13"})
	activities.Seed(types.Activity{UserID: 1, Title: "Old", Category: "kerja", Mood: "tired", Energy: 5, ActivityDate: "2026-10-09"})
	activities.Seed(types.Activity{UserID: 2, Title: "Other", Category: "santai", Mood: "happy", Energy: 1, ActivityDate: "2026-10-14"})

	out, err := newAnalyticsService(&testsupport.Analytics{Activities: activities}).WeeklyMood(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []types.WeekdayMood{
		{Day: "Sun"},
		{Day: "Mon"},
		{Day: "Tue", AvgEnergy: 2, Count: 1},
		{Day: "Wed"},
		{Day: "Thu"},
		{Day: "Fri", AvgEnergy: 4, Count: 1},
		{Day: "Sat"},
	}, out)
}

func TestOverviewForNewUser(t *testing.T) {
	repo := &stubAnalytics{busiestErr: store.ErrNotFound}

	out, err := newAnalyticsService(repo).Overview(context.Background(), 1)
	require.NoError(t, err)

	assert.Nil(t, out.ProductiveDay)
	assert.Len(t, out.WeeklyMood, 7)
	assert.Len(t, out.MonthlyTrend, 30)
	for _, day := range out.MonthlyTrend {
		assert.Zero(t, day.Count)
	}
	assert.Equal(t, types.UserStats{}, out.UserStats)
	assert.Nil(t, out.WeeklySummary.StartDate)
}

func TestOverviewPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")

	_, err := newAnalyticsService(&stubAnalytics{err: boom}).Overview(context.Background(), 1)
	require.ErrorIs(t, err, boom)

	_, err = newAnalyticsService(&stubAnalytics{busiestErr: boom}).ProductiveDay(context.Background(), 1)
	require.ErrorIs(t, err, boom)
}

func TestWindowsFollowServiceTimezone(t *testing.T) {
	repo := &stubAnalytics{}
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	svc := NewAnalyticsService(repo, tokyo)
	svc.now = fixedClock(time.Date(2026, time.October, 16, 20, 0, 0, 0, time.UTC))

	_, err = svc.WeeklyMood(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.PeakHours(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"2026-10-11", "2026-10-17"}}, repo.windows)
	assert.Equal(t, "Asia/Tokyo", repo.timezone)
}

func TestFillWeekdaysIgnoresOutOfRangeRows(t *testing.T) {
	out := FillWeekdays([]types.WeekdayEnergy{{Weekday: 7, Count: 1}, {Weekday: 0, AvgEnergy: 2, Count: 1}})

	require.Len(t, out, 7)
	assert.Equal(t, []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}, []string{
		out[0].Day, out[1].Day, out[2].Day, out[3].Day, out[4].Day, out[5].Day, out[6].Day,
	})
	assert.Equal(t, 1, out[0].Count)
}

func TestFillDaysCrossesMonthAndYear(t *testing.T) {
	today := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)

	out := FillDays([]types.DailyCount{{Date: "2026-12-31", Count: 2}}, today, 3)

	assert.Equal(t, []types.DailyCount{
		{Date: "Dec 30", Count: 0},
		{Date: "Dec 31", Count: 2},
		{Date: "Jan 1", Count: 0},
	}, out)
}

func TestStreak(t *testing.T) {
	today := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		dates []string
		want  int
	}{
		{name: "no activity", dates: nil, want: 0},
		{name: "today only", dates: []string{"2026-03-01"}, want: 1},
		{name: "across month end", dates: []string{"2026-03-01", "2026-02-28", "2026-02-27"}, want: 3},
		{name: "gap stops the streak", dates: []string{"2026-03-01", "2026-02-28", "2026-02-26"}, want: 2},
		{name: "ending yesterday", dates: []string{"2026-02-28", "2026-02-27"}, want: 2},
		{name: "stale", dates: []string{"2026-02-27", "2026-02-26"}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Streak(tc.dates, today))
		})
	}
}
