package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lifelog/apiserver/internal/auth"
	"github.com/lifelog/apiserver/internal/logger"
	"github.com/lifelog/apiserver/internal/services"
	"github.com/lifelog/apiserver/internal/store"
)

// ActivityHandler serves the authenticated activity endpoints.
type ActivityHandler struct {
	activityService  *services.ActivityService
	analyticsService *services.AnalyticsService
	exportService    *services.ExportService
	errs             errorWriter
}

func NewActivityHandler(
	activityService *services.ActivityService,
	analyticsService *services.AnalyticsService,
	exportService *services.ExportService,
	debug bool,
) *ActivityHandler {
	return &ActivityHandler{
		activityService:  activityService,
		analyticsService: analyticsService,
		exportService:    exportService,
		errs:             errorWriter{debug: debug},
	}
}

// ActivityRouter registers activity routes on the given router. Every route
// requires authentication.
func ActivityRouter(
	r chi.Router,
	activityService *services.ActivityService,
	analyticsService *services.AnalyticsService,
	exportService *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
	debug bool,
) {
	handler := NewActivityHandler(activityService, analyticsService, exportService, debug)

	r.Use(authMiddleware)
	r.Get("/", handler.ListActivities)
	r.Post("/", handler.CreateActivity)
	r.Get("/summary", handler.DashboardSummary)
	r.Get("/analytics", handler.Analytics)
	r.Post("/exports", handler.CreateExport)
	r.Get("/exports/{exportID}", handler.DownloadExport)
	r.Delete("/exports/{exportID}", handler.DeleteExport)
	r.Route("/{activityID}", func(r chi.Router) {
		r.Get("/", handler.GetActivity)
		r.Put("/", handler.UpdateActivity)
		r.Delete("/", handler.DeleteActivity)
	})
}

func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	activities, err := h.activityService.List(r.Context(), identity.ID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activities retrieved", activities)
}

func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req ActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.activityService.Create(r.Context(), identity.ID, req.input())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "activity created", created)
}

func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := parseID(r, "activityID")
	if !ok {
		writeError(w, http.StatusNotFound, "activity not found")
		return
	}

	activity, err := h.activityService.Get(r.Context(), identity.ID, id)
	if err != nil {
		h.writeActivityError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", activity)
}

func (h *ActivityHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := parseID(r, "activityID")
	if !ok {
		writeError(w, http.StatusNotFound, "activity not found")
		return
	}

	var req ActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.activityService.Update(r.Context(), identity.ID, id, req.input())
	if err != nil {
		h.writeActivityError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activity updated", updated)
}

func (h *ActivityHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := parseID(r, "activityID")
	if !ok {
		writeError(w, http.StatusNotFound, "activity not found")
		return
	}

	if err := h.activityService.Delete(r.Context(), identity.ID, id); err != nil {
		h.writeActivityError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activity deleted", nil)
}

// DashboardSummary reports today's activities of the caller.
func (h *ActivityHandler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	summary, err := h.activityService.DashboardSummary(r.Context(), identity.ID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", summary)
}

func (h *ActivityHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	overview, err := h.analyticsService.Overview(r.Context(), identity.ID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", overview)
}

// CreateExport renders the caller's activities in the format given by the
// format query parameter (csv by default) and stores the file.
func (h *ActivityHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	export, err := h.exportService.Create(r.Context(), identity.ID, r.URL.Query().Get("format"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "export created", export)
}

func (h *ActivityHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	exportID := chi.URLParam(r, "exportID")

	body, contentType, err := h.exportService.Open(r.Context(), identity.ID, exportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		h.errs.write(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "lifelog-"+exportID))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger.Warn("export.stream_failed", "export_id", exportID, "err", err)
	}
}

func (h *ActivityHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.exportService.Delete(r.Context(), identity.ID, chi.URLParam(r, "exportID")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "export deleted", nil)
}

func (h *ActivityHandler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "access token required")
	}
	return identity, ok
}

func (h *ActivityHandler) writeActivityError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "activity not found")
		return
	}
	h.errs.write(w, r, err)
}

// ActivityRequest is the body of create and update calls. Energy is a
// pointer so a missing value can be told apart from zero.
type ActivityRequest struct {
	Title        string  `json:"title"`
	Category     string  `json:"category"`
	Mood         string  `json:"mood"`
	Energy       *int    `json:"energy"`
	Note         *string `json:"note"`
	ActivityDate string  `json:"activity_date"`
}

func (req ActivityRequest) input() services.ActivityInput {
	return services.ActivityInput{
		Title:        req.Title,
		Category:     req.Category,
		Mood:         req.Mood,
		Energy:       req.Energy,
		Note:         req.Note,
		ActivityDate: req.ActivityDate,
	}
}
