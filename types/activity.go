package types

import "time"

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Category codes accepted for activities. Other codes are stored verbatim.
const (
	CategoryStudy    = "belajar"
	CategoryWork     = "kerja"
	CategoryExercise = "olahraga"
	CategoryRelax    = "santai"
	CategoryOther    = "lainnya"
)

var categoryLabels = map[string]string{
	CategoryStudy:    "Study",
	CategoryWork:     "Work",
	CategoryExercise: "Exercise",
	CategoryRelax:    "Relax",
	CategoryOther:    "Other",
}

// CategoryLabel returns the display label of a category code. Unknown codes
// are returned unchanged.
func CategoryLabel(code string) string {
	if label, ok := categoryLabels[code]; ok {
		return label
	}
	return code
}

// Activity is a single logged life event owned by one user.
type Activity struct {
	// ID is the unique identifier of the activity.
	ID int `json:"id" db:"id"`

	// UserID identifies the owning user.
	UserID int `json:"user_id" db:"user_id"`

	// Title is a short description of what was done.
	Title string `json:"title" db:"title"`

	// Category is one of the category codes, e.g. "olahraga".
	Category string `json:"category" db:"category"`

	// Mood is a free-form mood label such as "happy".
	Mood string `json:"mood" db:"mood"`

	// Energy is the self-reported energy level, between 1 and 5.
	Energy int `json:"energy" db:"energy"`

	// Note is optional free text.
	Note *string `json:"note" db:"note"`

	// ActivityDate is the calendar day the activity happened, as YYYY-MM-DD.
	ActivityDate string `json:"activity_date" db:"activity_date"`

	// CreatedAt is the timestamp when the activity was logged.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DashboardSummary describes a user's activities for the current day.
type DashboardSummary struct {
	TotalActivities  int        `json:"total_activities"`
	DominantMood     *string    `json:"dominant_mood"`
	AverageEnergy    float64    `json:"average_energy"`
	RecentActivities []Activity `json:"recent_activities"`
}

// Activity event types published after a successful write.
const (
	EventActivityCreated = "activity.created"
	EventActivityUpdated = "activity.updated"
	EventActivityDeleted = "activity.deleted"
)

// ActivityEvent is the message published when an activity changes.
type ActivityEvent struct {
	Type       string    `json:"type"`
	ActivityID int       `json:"activity_id"`
	UserID     int       `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Activity   *Activity `json:"activity,omitempty"`
}

// Export describes an activity export stored in object storage.
type Export struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}
