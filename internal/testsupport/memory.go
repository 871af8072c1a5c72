// Package testsupport holds fakes and container helpers shared by tests.
package testsupport

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lifelog/apiserver/internal/storage"
	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/types"
)

// Users is an in-memory user repository with a unique email index.
type Users struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.User
}

func NewUsers() *Users {
	return &Users{rows: make(map[int]types.User)}
}

func (u *Users) GetByID(_ context.Context, id int) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.rows[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.rows {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(_ context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.rows {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	u.nextID++
	now := time.Now()
	user.ID = u.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	u.rows[user.ID] = user
	return user, nil
}

// Activities is an in-memory activity repository that honours per-user
// scoping the same way the postgres repository does.
type Activities struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.Activity
	// Err, when set, is returned by every method.
	Err error
}

func NewActivities() *Activities {
	return &Activities{rows: make(map[int]types.Activity)}
}

// Seed stores activity as-is apart from assigning an id.
func (a *Activities) Seed(activity types.Activity) types.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	activity.ID = a.nextID
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	if activity.UpdatedAt.IsZero() {
		activity.UpdatedAt = activity.CreatedAt
	}
	a.rows[activity.ID] = activity
	return activity
}

func (a *Activities) List(_ context.Context, userID int) ([]types.Activity, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return a.filter(func(act types.Activity) bool { return act.UserID == userID }, 0), nil
}

func (a *Activities) ListByDate(_ context.Context, userID int, day string, limit int) ([]types.Activity, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return a.filter(func(act types.Activity) bool {
		return act.UserID == userID && act.ActivityDate == day
	}, limit), nil
}

func (a *Activities) Get(_ context.Context, userID, id int) (types.Activity, error) {
	if a.Err != nil {
		return types.Activity{}, a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	act, ok := a.rows[id]
	if !ok || act.UserID != userID {
		return types.Activity{}, store.ErrNotFound
	}
	return act, nil
}

func (a *Activities) Create(_ context.Context, activity types.Activity) (types.Activity, error) {
	if a.Err != nil {
		return types.Activity{}, a.Err
	}
	activity.CreatedAt = time.Time{}
	activity.UpdatedAt = time.Time{}
	return a.Seed(activity), nil
}

func (a *Activities) Update(_ context.Context, activity types.Activity) (types.Activity, error) {
	if a.Err != nil {
		return types.Activity{}, a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.rows[activity.ID]
	if !ok || existing.UserID != activity.UserID {
		return types.Activity{}, store.ErrNotFound
	}
	activity.CreatedAt = existing.CreatedAt
	activity.UpdatedAt = time.Now()
	a.rows[activity.ID] = activity
	return activity, nil
}

func (a *Activities) Delete(_ context.Context, userID, id int) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.rows[id]
	if !ok || existing.UserID != userID {
		return store.ErrNotFound
	}
	delete(a.rows, id)
	return nil
}

func (a *Activities) DayStats(_ context.Context, userID int, day string) (int, float64, error) {
	if a.Err != nil {
		return 0, 0, a.Err
	}
	rows := a.filter(func(act types.Activity) bool {
		return act.UserID == userID && act.ActivityDate == day
	}, 0)
	if len(rows) == 0 {
		return 0, 0, nil
	}
	sum := 0
	for _, act := range rows {
		sum += act.Energy
	}
	return len(rows), float64(sum) / float64(len(rows)), nil
}

func (a *Activities) DominantMood(_ context.Context, userID int, day string) (string, error) {
	if a.Err != nil {
		return "", a.Err
	}
	counts := make(map[string]int)
	for _, act := range a.filter(func(act types.Activity) bool {
		return act.UserID == userID && act.ActivityDate == day
	}, 0) {
		counts[act.Mood]++
	}
	if len(counts) == 0 {
		return "", store.ErrNotFound
	}
	best, bestCount := "", 0
	for mood, count := range counts {
		if count > bestCount || (count == bestCount && mood < best) {
			best, bestCount = mood, count
		}
	}
	return best, nil
}

// filter returns matching rows newest first, capped at limit when positive.
func (a *Activities) filter(keep func(types.Activity) bool, limit int) []types.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Activity, 0)
	for _, act := range a.rows {
		if keep(act) {
			out = append(out, act)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []types.ActivityEvent
	// Err, when set, is returned by Publish after recording the event.
	Err error
}

func (p *Publisher) Publish(_ context.Context, event types.ActivityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

func (p *Publisher) Events() []types.ActivityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ActivityEvent(nil), p.events...)
}

// Objects is an in-memory object store.
type Objects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func NewObjects() *Objects {
	return &Objects{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (o *Objects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	o.contentTypes[key] = contentType
	return nil
}

func (o *Objects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(o.objects, key)
	delete(o.contentTypes, key)
	return nil
}

// Keys lists stored keys in lexical order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for key := range o.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type a key was stored with.
func (o *Objects) ContentType(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.contentTypes[key]
}
