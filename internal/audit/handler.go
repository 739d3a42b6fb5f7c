package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-ehr/meridian-ehr/internal/platform/httpx"
)

const (
	defaultWindow = 24 * time.Hour
	maxWindow     = 90 * 24 * time.Hour
)

// Handler exposes the read-only audit query surface. Admin gating happens in
// the router; the handler assumes an administrator principal.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs an audit handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/logs", h.handleList)
	r.Get("/users/{userID}", h.handleUserHistory)
	r.Get("/patients/{patientID}", h.handlePatientHistory)
	r.Get("/failed-logins", h.handleFailedLogins)
	r.Get("/suspicious", h.handleSuspicious)
	r.Get("/summary", h.handleSummary)
}

type entryView struct {
	ID            string         `json:"id"`
	ActorID       string         `json:"actorId"`
	ActorUsername string         `json:"actorUsername"`
	ActorRole     string         `json:"actorRole"`
	Action        string         `json:"action"`
	ResourceType  string         `json:"resourceType"`
	ResourceID    string         `json:"resourceId"`
	Result        string         `json:"result"`
	Details       map[string]any `json:"details,omitempty"`
	Justification string         `json:"justification,omitempty"`
	SourceIP      string         `json:"sourceIp,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

type pageView struct {
	Rows   []entryView `json:"rows"`
	Paging PagingInfo  `json:"paging"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.serverError(w, "list audit entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPageView(result))
}

func (h *Handler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.UserHistory(r.Context(), chi.URLParam(r, "userID"), filters)
	if err != nil {
		h.serverError(w, "load user history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPageView(result))
}

func (h *Handler) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.PatientHistory(r.Context(), chi.URLParam(r, "patientID"), filters)
	if err != nil {
		h.serverError(w, "load patient history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPageView(result))
}

func (h *Handler) handleFailedLogins(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.FailedLogins(r.Context(), window)
	if err != nil {
		h.serverError(w, "load failed logins", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryViews(entries))
}

func (h *Handler) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.SuspiciousActivity(r.Context(), window)
	if err != nil {
		h.serverError(w, "load suspicious activity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryViews(entries))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	summaries, err := h.service.Summary(r.Context(), window)
	if err != nil {
		h.serverError(w, "load audit summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) serverError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	filters := Filters{
		UserID:       strings.TrimSpace(q.Get("userId")),
		Action:       strings.TrimSpace(q.Get("action")),
		ResourceType: strings.TrimSpace(q.Get("resourceType")),
		Result:       strings.TrimSpace(q.Get("result")),
	}
	var err error
	if filters.From, err = parseDate(q.Get("startDate")); err != nil {
		return Filters{}, err
	}
	if filters.To, err = parseDate(q.Get("endDate")); err != nil {
		return Filters{}, err
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return Filters{}, errInvalidRange
	}
	if filters.Page, err = parsePositiveInt(q.Get("page")); err != nil {
		return Filters{}, err
	}
	if filters.PageSize, err = parsePositiveInt(q.Get("pageSize")); err != nil {
		return Filters{}, err
	}
	return filters, nil
}

func parseWindow(r *http.Request) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("window"))
	if raw == "" {
		return defaultWindow, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 || window > maxWindow {
		return 0, errInvalidWindow
	}
	return window, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return t, nil
}

func parsePositiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errInvalidPage
	}
	return value, nil
}

func toPageView(result Result) pageView {
	return pageView{Rows: toEntryViews(result.Rows), Paging: result.Paging}
}

func toEntryViews(entries []Entry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			ID:            e.ID,
			ActorID:       e.ActorID,
			ActorUsername: e.ActorUsername,
			ActorRole:     e.ActorRole,
			Action:        e.Action,
			ResourceType:  e.ResourceType,
			ResourceID:    e.ResourceID,
			Result:        e.Result,
			Details:       e.Details,
			Justification: e.Justification,
			SourceIP:      e.SourceIP,
			UserAgent:     e.UserAgent,
			OccurredAt:    e.OccurredAt,
		})
	}
	return views
}

type filterError string

func (e filterError) Error() string { return string(e) }

const (
	errInvalidDate   = filterError("invalid date filter")
	errInvalidRange  = filterError("start date is after end date")
	errInvalidWindow = filterError("invalid window")
	errInvalidPage   = filterError("invalid pagination value")
)
