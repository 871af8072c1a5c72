package testsupport

import (
	"context"
	"sort"
	"time"

	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/types"
)

// Analytics answers the analytics queries from the rows of an Activities
// fake, mirroring the SQL in store.AnalyticsRepository.
type Analytics struct {
	Activities *Activities
}

func (a *Analytics) rows(userID int, keep func(types.Activity) bool) []types.Activity {
	return a.Activities.filter(func(act types.Activity) bool {
		return act.UserID == userID && (keep == nil || keep(act))
	}, 0)
}

func inRange(from, to string) func(types.Activity) bool {
	return func(act types.Activity) bool {
		return act.ActivityDate >= from && act.ActivityDate <= to
	}
}

func weekday(date string) int {
	t, err := time.Parse(types.DateLayout, date)
	if err != nil {
		return -1
	}
	return int(t.Weekday())
}

func (a *Analytics) WeekdayEnergy(_ context.Context, userID int, from, to string) ([]types.WeekdayEnergy, error) {
	sums := map[int]int{}
	counts := map[int]int{}
	for _, act := range a.rows(userID, inRange(from, to)) {
		day := weekday(act.ActivityDate)
		sums[day] += act.Energy
		counts[day]++
	}
	out := make([]types.WeekdayEnergy, 0, len(counts))
	for day, count := range counts {
		out = append(out, types.WeekdayEnergy{Weekday: day, AvgEnergy: float64(sums[day]) / float64(count), Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (a *Analytics) CategoryCounts(_ context.Context, userID int) ([]types.CategoryCount, error) {
	counts := map[string]int{}
	for _, act := range a.rows(userID, nil) {
		counts[act.Category]++
	}
	out := make([]types.CategoryCount, 0, len(counts))
	for category, count := range counts {
		out = append(out, types.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (a *Analytics) DailyCounts(_ context.Context, userID int, from, to string) ([]types.DailyCount, error) {
	counts := map[string]int{}
	for _, act := range a.rows(userID, inRange(from, to)) {
		counts[act.ActivityDate]++
	}
	out := make([]types.DailyCount, 0, len(counts))
	for date, count := range counts {
		out = append(out, types.DailyCount{Date: date, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (a *Analytics) MoodCounts(_ context.Context, userID int) ([]types.MoodCount, error) {
	counts := map[string]int{}
	for _, act := range a.rows(userID, nil) {
		counts[act.Mood]++
	}
	out := make([]types.MoodCount, 0, len(counts))
	for mood, count := range counts {
		out = append(out, types.MoodCount{Mood: mood, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mood < out[j].Mood })
	return out, nil
}

func (a *Analytics) PeakHours(_ context.Context, userID int, timezone string, limit int) ([]types.HourCount, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	counts := map[int]int{}
	for _, act := range a.rows(userID, nil) {
		counts[act.CreatedAt.In(loc).Hour()]++
	}
	out := make([]types.HourCount, 0, len(counts))
	for hour, count := range counts {
		out = append(out, types.HourCount{Hour: hour, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hour < out[j].Hour
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *Analytics) BusiestWeekday(_ context.Context, userID int) (int, int, error) {
	counts := map[int]int{}
	for _, act := range a.rows(userID, nil) {
		counts[weekday(act.ActivityDate)]++
	}
	if len(counts) == 0 {
		return 0, 0, store.ErrNotFound
	}
	best, bestCount := 7, 0
	for day, count := range counts {
		if count > bestCount || (count == bestCount && day < best) {
			best, bestCount = day, count
		}
	}
	return best, bestCount, nil
}

func (a *Analytics) WeeklySummary(_ context.Context, userID int, from, to string) (types.WeeklySummary, error) {
	rows := a.rows(userID, inRange(from, to))
	summary := types.WeeklySummary{TotalActivities: len(rows)}
	if len(rows) == 0 {
		return summary, nil
	}
	sum := 0
	start, end := rows[0].ActivityDate, rows[0].ActivityDate
	for _, act := range rows {
		sum += act.Energy
		start = min(start, act.ActivityDate)
		end = max(end, act.ActivityDate)
	}
	summary.AvgEnergy = float64(sum) / float64(len(rows))
	summary.StartDate = &start
	summary.EndDate = &end
	return summary, nil
}

func (a *Analytics) Totals(_ context.Context, userID int) (int, int, error) {
	rows := a.rows(userID, nil)
	days := map[string]struct{}{}
	for _, act := range rows {
		days[act.ActivityDate] = struct{}{}
	}
	return len(days), len(rows), nil
}

func (a *Analytics) ActiveDates(_ context.Context, userID int, upTo string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, act := range a.rows(userID, func(act types.Activity) bool { return act.ActivityDate <= upTo }) {
		if _, ok := seen[act.ActivityDate]; ok {
			continue
		}
		seen[act.ActivityDate] = struct{}{}
		out = append(out, act.ActivityDate)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}
