package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lifelog/apiserver/internal/metrics"
	"github.com/lifelog/apiserver/internal/storage"
	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/types"
)

const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
)

var exportHeader = []string{"id", "title", "category", "mood", "energy", "note", "activity_date", "created_at"}

// ActivityLister is the read side an export needs.
type ActivityLister interface {
	List(ctx context.Context, userID int) ([]types.Activity, error)
}

// ObjectStore is the subset of storage.Backend used for exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ExportService renders a user's activities to CSV or JSON and keeps the
// result in object storage under exports/<userID>/.
type ExportService struct {
	activities ActivityLister
	objects    ObjectStore
	now        func() time.Time
}

// NewExportService builds the service. A nil objects store disables exports.
func NewExportService(activities ActivityLister, objects ObjectStore) *ExportService {
	return &ExportService{activities: activities, objects: objects, now: time.Now}
}

func (s *ExportService) Enabled() bool {
	return s != nil && s.objects != nil
}

func (s *ExportService) Create(ctx context.Context, userID int, format string) (types.Export, error) {
	if !s.Enabled() {
		return types.Export{}, ErrExportsDisabled
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatJSON {
		return types.Export{}, invalid("format must be csv or json")
	}

	activities, err := s.activities.List(ctx, userID)
	if err != nil {
		return types.Export{}, fmt.Errorf("list activities: %w", err)
	}

	createdAt := s.now().UTC()
	var buf bytes.Buffer
	if format == ExportFormatCSV {
		err = writeActivitiesCSV(&buf, activities)
	} else {
		err = writeActivitiesJSON(&buf, activities, createdAt)
	}
	if err != nil {
		return types.Export{}, fmt.Errorf("render export: %w", err)
	}

	id := uuid.NewString() + "." + format
	size := int64(buf.Len())
	if err := s.objects.Put(ctx, exportKey(userID, id), &buf, size, contentTypeFor(format)); err != nil {
		return types.Export{}, fmt.Errorf("upload export: %w", err)
	}

	metrics.RecordExport(format)
	return types.Export{
		ID:        id,
		Format:    format,
		Size:      size,
		Count:     len(activities),
		CreatedAt: createdAt,
	}, nil
}

// Open returns a previously created export of userID along with its content
// type. Ids that are malformed or belong to someone else are not found.
func (s *ExportService) Open(ctx context.Context, userID int, exportID string) (io.ReadCloser, string, error) {
	if !s.Enabled() {
		return nil, "", ErrExportsDisabled
	}

	format, ok := parseExportID(exportID)
	if !ok {
		return nil, "", store.ErrNotFound
	}

	body, err := s.objects.Get(ctx, exportKey(userID, exportID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", fmt.Errorf("open export: %w", err)
	}
	return body, contentTypeFor(format), nil
}

// Delete removes an export of userID. Unknown ids are not found.
func (s *ExportService) Delete(ctx context.Context, userID int, exportID string) error {
	body, _, err := s.Open(ctx, userID, exportID)
	if err != nil {
		return err
	}
	_ = body.Close()

	if err := s.objects.Delete(ctx, exportKey(userID, exportID)); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete export: %w", err)
	}
	return nil
}

func exportKey(userID int, exportID string) string {
	return path.Join("exports", strconv.Itoa(userID), exportID)
}

func parseExportID(exportID string) (string, bool) {
	name, format, found := strings.Cut(exportID, ".")
	if !found || (format != ExportFormatCSV && format != ExportFormatJSON) {
		return "", false
	}
	if _, err := uuid.Parse(name); err != nil {
		return "", false
	}
	return format, true
}

func contentTypeFor(format string) string {
	if format == ExportFormatJSON {
		return "application/json"
	}
	return "text/csv"
}

func writeActivitiesCSV(w io.Writer, activities []types.Activity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, a := range activities {
		note := ""
		if a.Note != nil {
			note = *a.Note
		}
		record := []string{
			strconv.Itoa(a.ID),
			a.Title,
			a.Category,
			a.Mood,
			strconv.Itoa(a.Energy),
			note,
			a.ActivityDate,
			a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeActivitiesJSON(w io.Writer, activities []types.Activity, exportedAt time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ExportedAt time.Time        `json:"exported_at"`
		Count      int              `json:"count"`
		Activities []types.Activity `json:"activities"`
	}{
		ExportedAt: exportedAt,
		Count:      len(activities),
		Activities: activities,
	})
}
