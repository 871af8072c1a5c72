//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type authData struct {
	Token string `json:"token"`
}

type activityData struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Mood         string  `json:"mood"`
	Energy       int     `json:"energy"`
	Note         *string `json:"note"`
	ActivityDate string  `json:"activity_date"`
}

type summaryData struct {
	TotalActivities  int            `json:"total_activities"`
	DominantMood     *string        `json:"dominant_mood"`
	AverageEnergy    float64        `json:"average_energy"`
	RecentActivities []activityData `json:"recent_activities"`
}

type analyticsData struct {
	WeeklyMood []struct {
		Day       string  `json:"day"`
		AvgEnergy float64 `json:"avg_energy"`
		Count     int     `json:"count"`
	} `json:"weekly_mood"`
	MonthlyTrend []struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	} `json:"monthly_trend"`
	UserStats struct {
		DaysTracked     int `json:"days_tracked"`
		TotalActivities int `json:"total_activities"`
		StreakDays      int `json:"streak_days"`
	} `json:"user_stats"`
}

func TestActivityLifecycle(t *testing.T) {
	token := registerUser(t, uniqueEmail("owner"))
	today := time.Now().UTC().Format("2006-01-02")

	status, env := call(t, http.MethodPost, "/api/activities", token, map[string]any{
		"title":         "Morning run",
		"category":      "olahraga",
		"mood":          "happy",
		"energy":        4,
		"note":          "5km",
		"activity_date": today,
	})
	if status != http.StatusCreated {
		t.Fatalf("create activity status %d: %s", status, env.Message)
	}
	var created activityData
	decodeData(t, env, &created)
	if created.ID == 0 {
		t.Fatalf("expected activity ID to be set")
	}
	if created.Note == nil || *created.Note != "5km" {
		t.Fatalf("unexpected note: %v", created.Note)
	}

	status, fetched := call(t, http.MethodGet, fmt.Sprintf("/api/activities/%d", created.ID), token, nil)
	if status != http.StatusOK {
		t.Fatalf("get activity status %d: %s", status, fetched.Message)
	}
	if string(fetched.Data) != string(env.Data) {
		t.Fatalf("fetched activity differs from created one:\ncreated: %s\nfetched: %s", env.Data, fetched.Data)
	}

	status, listEnv := call(t, http.MethodGet, "/api/activities", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list activities status %d: %s", status, listEnv.Message)
	}
	var rawList []json.RawMessage
	decodeData(t, listEnv, &rawList)
	if len(rawList) != 1 || string(rawList[0]) != string(env.Data) {
		t.Fatalf("listed activity differs from created one:\ncreated: %s\nlisted: %s", env.Data, listEnv.Data)
	}

	status, env = call(t, http.MethodPut, fmt.Sprintf("/api/activities/%d", created.ID), token, map[string]any{
		"title":         "Morning run",
		"category":      "olahraga",
		"mood":          "tired",
		"energy":        2,
		"activity_date": today,
	})
	if status != http.StatusOK {
		t.Fatalf("update activity status %d: %s", status, env.Message)
	}
	var updated activityData
	decodeData(t, env, &updated)
	if updated.Mood != "tired" || updated.Energy != 2 {
		t.Fatalf("unexpected updated activity: %+v", updated)
	}
	if updated.Note != nil {
		t.Fatalf("expected note to be cleared, got %q", *updated.Note)
	}

	status, env = call(t, http.MethodGet, "/api/activities", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list activities status %d: %s", status, env.Message)
	}
	var listed []activityData
	decodeData(t, env, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected activity list: %+v", listed)
	}

	status, env = call(t, http.MethodDelete, fmt.Sprintf("/api/activities/%d", created.ID), token, nil)
	if status != http.StatusOK {
		t.Fatalf("delete activity status %d: %s", status, env.Message)
	}

	status, env = call(t, http.MethodGet, fmt.Sprintf("/api/activities/%d", created.ID), token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected deleted activity to be missing, got %d", status)
	}
	if env.Message != "activity not found" {
		t.Fatalf("unexpected not found message: %q", env.Message)
	}
}

func TestActivitiesAreScopedToOwner(t *testing.T) {
	owner := registerUser(t, uniqueEmail("owner"))
	other := registerUser(t, uniqueEmail("other"))

	status, env := call(t, http.MethodPost, "/api/activities", owner, map[string]any{
		"title":    "Read",
		"category": "belajar",
		"mood":     "calm",
		"energy":   3,
	})
	if status != http.StatusCreated {
		t.Fatalf("create activity status %d: %s", status, env.Message)
	}
	var created activityData
	decodeData(t, env, &created)

	path := fmt.Sprintf("/api/activities/%d", created.ID)
	if status, _ := call(t, http.MethodGet, path, other, nil); status != http.StatusNotFound {
		t.Fatalf("foreign get status %d", status)
	}
	if status, _ := call(t, http.MethodDelete, path, other, nil); status != http.StatusNotFound {
		t.Fatalf("foreign delete status %d", status)
	}
	if status, _ := call(t, http.MethodGet, path, owner, nil); status != http.StatusOK {
		t.Fatalf("owner get status %d", status)
	}
}

func TestDashboardAndAnalytics(t *testing.T) {
	token := registerUser(t, uniqueEmail("stats"))
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	lastMonth := now.AddDate(0, 0, -10).Format("2006-01-02")

	for _, item := range []map[string]any{
		{"title": "Study", "category": "belajar", "mood": "focused", "energy": 4, "activity_date": today},
		{"title": "Gym", "category": "olahraga", "mood": "happy", "energy": 5, "activity_date": today},
		{"title": "Walk", "category": "santai", "mood": "happy", "energy": 2, "activity_date": today},
		{"title": "Work", "category": "kerja", "mood": "tired", "energy": 2, "activity_date": yesterday},
		{"title": "Old", "category": "kerja", "mood": "calm", "energy": 1, "activity_date": lastMonth},
	} {
		if status, env := call(t, http.MethodPost, "/api/activities", token, item); status != http.StatusCreated {
			t.Fatalf("create activity status %d: %s", status, env.Message)
		}
	}

	status, env := call(t, http.MethodGet, "/api/activities/summary", token, nil)
	if status != http.StatusOK {
		t.Fatalf("summary status %d: %s", status, env.Message)
	}
	var summary summaryData
	decodeData(t, env, &summary)
	if summary.TotalActivities != 3 {
		t.Fatalf("unexpected total: %d", summary.TotalActivities)
	}
	if summary.DominantMood == nil || *summary.DominantMood != "happy" {
		t.Fatalf("unexpected dominant mood: %v", summary.DominantMood)
	}
	if summary.AverageEnergy != 3.67 {
		t.Fatalf("unexpected average energy: %v", summary.AverageEnergy)
	}
	if len(summary.RecentActivities) != 3 || summary.RecentActivities[0].Title != "Walk" {
		t.Fatalf("unexpected recent activities: %+v", summary.RecentActivities)
	}

	status, env = call(t, http.MethodGet, "/api/activities/analytics", token, nil)
	if status != http.StatusOK {
		t.Fatalf("analytics status %d: %s", status, env.Message)
	}
	var analytics analyticsData
	decodeData(t, env, &analytics)
	if len(analytics.WeeklyMood) != 7 {
		t.Fatalf("expected 7 weekday buckets, got %d", len(analytics.WeeklyMood))
	}
	todayBucket := int(now.Weekday())
	yesterdayBucket := int(now.AddDate(0, 0, -1).Weekday())
	for i, bucket := range analytics.WeeklyMood {
		if bucket.Day != time.Weekday(i).String()[:3] {
			t.Fatalf("bucket %d labelled %q", i, bucket.Day)
		}
		switch i {
		case todayBucket:
			if bucket.Count != 3 || bucket.AvgEnergy != 3.67 {
				t.Fatalf("unexpected bucket for today: %+v", bucket)
			}
		case yesterdayBucket:
			if bucket.Count != 1 || bucket.AvgEnergy != 2 {
				t.Fatalf("unexpected bucket for yesterday: %+v", bucket)
			}
		default:
			if bucket.Count != 0 || bucket.AvgEnergy != 0 {
				t.Fatalf("expected empty bucket %d, got %+v", i, bucket)
			}
		}
	}
	if len(analytics.MonthlyTrend) != 30 {
		t.Fatalf("expected 30 trend days, got %d", len(analytics.MonthlyTrend))
	}
	if last := analytics.MonthlyTrend[29]; last.Count != 3 {
		t.Fatalf("unexpected trend for today: %+v", last)
	}
	stats := analytics.UserStats
	if stats.TotalActivities != 5 || stats.DaysTracked != 3 || stats.StreakDays != 2 {
		t.Fatalf("unexpected user stats: %+v", stats)
	}
}

func TestExportRoundTrip(t *testing.T) {
	token := registerUser(t, uniqueEmail("export"))
	if status, env := call(t, http.MethodPost, "/api/activities", token, map[string]any{
		"title": "Cook", "category": "lainnya", "mood": "calm", "energy": 3,
	}); status != http.StatusCreated {
		t.Fatalf("create activity status %d: %s", status, env.Message)
	}

	status, env := call(t, http.MethodPost, "/api/activities/exports?format=csv", token, nil)
	if status != http.StatusCreated {
		t.Fatalf("create export status %d: %s", status, env.Message)
	}
	var export struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	decodeData(t, env, &export)
	if export.Count != 1 {
		t.Fatalf("unexpected export count: %d", export.Count)
	}

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/activities/exports/"+export.ID, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download export: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "Cook") {
		t.Fatalf("export does not contain the activity: %s", body)
	}

	if status, env := call(t, http.MethodDelete, "/api/activities/exports/"+export.ID, token, nil); status != http.StatusOK {
		t.Fatalf("delete export status %d: %s", status, env.Message)
	}
	if status, _ := call(t, http.MethodDelete, "/api/activities/exports/"+export.ID, token, nil); status != http.StatusNotFound {
		t.Fatalf("expected deleted export to be missing, got %d", status)
	}
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@example.com", prefix, time.Now().UnixNano())
}

func registerUser(t *testing.T, email string) string {
	t.Helper()

	status, env := call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Test User",
		"email":    email,
		"password": "testpass123!",
	})
	if status != http.StatusCreated {
		t.Fatalf("register status %d: %s", status, env.Message)
	}

	var parsed authData
	decodeData(t, env, &parsed)
	if parsed.Token == "" {
		t.Fatalf("missing token in register response")
	}
	return parsed.Token
}

func call(t *testing.T, method, path, token string, payload any) (int, envelope) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}
