package types

// Analytics is the full set of derived aggregates for one user.
// Every field is computed fresh per request.
type Analytics struct {
	WeeklyMood           []WeekdayMood   `json:"weekly_mood"`
	CategoryDistribution []CategoryCount `json:"category_distribution"`
	MonthlyTrend         []DailyCount    `json:"monthly_trend"`
	MoodDistribution     []MoodCount     `json:"mood_distribution"`
	PeakHours            []HourCount     `json:"peak_hours"`
	ProductiveDay        *WeekdayCount   `json:"productive_day"`
	WeeklySummary        WeeklySummary   `json:"weekly_summary"`
	UserStats            UserStats       `json:"user_stats"`
}

// WeekdayMood is the average energy and count for one weekday bucket.
// Day is the three-letter abbreviation, e.g. "Sun".
type WeekdayMood struct {
	Day       string  `json:"day"`
	AvgEnergy float64 `json:"avg_energy"`
	Count     int     `json:"count"`
}

// WeekdayEnergy is a raw per-weekday row as read from the store.
// Weekday follows time.Weekday numbering (Sunday = 0).
type WeekdayEnergy struct {
	Weekday   int
	AvgEnergy float64
	Count     int
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DailyCount is the number of activities on one day. Date is "Jan 2" in
// responses and YYYY-MM-DD when read from the store.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type MoodCount struct {
	Mood  string `json:"mood"`
	Count int    `json:"count"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// WeekdayCount is the busiest weekday. Day is the full weekday name.
type WeekdayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type WeeklySummary struct {
	TotalActivities int     `json:"total_activities"`
	AvgEnergy       float64 `json:"avg_energy"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
}

type UserStats struct {
	DaysTracked        int     `json:"days_tracked"`
	TotalActivities    int     `json:"total_activities"`
	AvgDailyActivities float64 `json:"avg_daily_activities"`
	StreakDays         int     `json:"streak_days"`
}
