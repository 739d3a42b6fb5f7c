package assignment

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ehr/meridian-ehr/internal/platform/httpx"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

// Handler wires HTTP endpoints for assignment lifecycle and emergency access.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountAdminRoutes registers the administrator-only lifecycle endpoints.
// Admin gating happens in the router.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Delete("/{assignmentID}", h.handleRevoke)
	r.Get("/staff/{staffID}", h.handleStaffAssignments)
	r.Get("/patients/{patientID}/history", h.handlePatientHistory)
	r.Post("/expire-overdue", h.handleExpireOverdue)
}

type createForm struct {
	PatientID     string `json:"patientId" validate:"required"`
	StaffID       string `json:"staffId" validate:"required"`
	StaffUsername string `json:"staffUsername" validate:"required"`
	StaffPosition string `json:"staffPosition" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
	AccessLevel   string `json:"accessLevel" validate:"required"`
	EndDate       string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type emergencyForm struct {
	Justification string `json:"justification" validate:"required"`
}

type assignmentView struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patientId"`
	StaffID       string     `json:"staffId"`
	StaffUsername string     `json:"staffUsername"`
	StaffPosition string     `json:"staffPosition"`
	AssignedBy    string     `json:"assignedBy"`
	Reason        string     `json:"reason"`
	AccessLevel   string     `json:"accessLevel"`
	StartDate     time.Time  `json:"startDate"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	Status        string     `json:"status"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	req := CreateRequest{
		PatientID:     form.PatientID,
		StaffID:       form.StaffID,
		StaffUsername: form.StaffUsername,
		StaffPosition: form.StaffPosition,
		Reason:        form.Reason,
		AccessLevel:   form.AccessLevel,
	}
	if form.EndDate != "" {
		t, err := time.Parse(time.RFC3339, form.EndDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid end date")
			return
		}
		req.EndDate = &t
	}

	created, err := h.service.Create(r.Context(), actor, req, metaFrom(r))
	if err != nil {
		h.respondServiceError(w, "create assignment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(created))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}
	id := chi.URLParam(r, "assignmentID")
	if _, err := h.service.Revoke(r.Context(), actor, id, metaFrom(r)); err != nil {
		h.respondServiceError(w, "revoke assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStaffAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.ActiveForStaff(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		h.respondServiceError(w, "list staff assignments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViews(assignments))
}

func (h *Handler) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.PatientHistory(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.respondServiceError(w, "list patient assignment history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViews(history))
}

func (h *Handler) handleExpireOverdue(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.ExpireOverdue(r.Context())
	if err != nil {
		h.respondServiceError(w, "expire overdue assignments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"expired": expired})
}

// HandleEmergencyAccess declares a time-boxed emergency grant. Mounted per
// patient behind principal resolution; role and justification rules live in
// the service.
func (h *Handler) HandleEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var form emergencyForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeInsufficientJustification, "justification is required")
		return
	}

	patientID := chi.URLParam(r, "patientID")
	created, err := h.service.DeclareEmergency(r.Context(), actor, patientID, form.Justification, metaFrom(r))
	if err != nil {
		h.respondServiceError(w, "declare emergency access", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(created))
}

// HandleCareTeam lists a patient's active care team. Mounted behind the
// ownership checkpoint so only assigned staff and administrators reach it.
func (h *Handler) HandleCareTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.service.CareTeam(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.respondServiceError(w, "list care team", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViews(team))
}

// HandleAccessiblePatients lists the patient ids the caller may see, filtered
// by assignment before anything is fetched.
func (h *Handler) HandleAccessiblePatients(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}
	ids, err := h.service.AccessiblePatients(r.Context(), actor)
	if err != nil {
		h.respondServiceError(w, "list accessible patients", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"patientIds": ids})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ErrAlreadyAssigned):
		httpx.ProblemCode(w, http.StatusConflict, httpx.CodeAlreadyAssigned, "an active assignment already exists for this staff and patient")
	case errors.Is(err, ErrInsufficientJustification):
		httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeInsufficientJustification, "justification does not meet the minimum length")
	case errors.Is(err, ErrNotMedicalStaff):
		httpx.ProblemCode(w, http.StatusForbidden, httpx.CodeForbidden, "emergency access is limited to medical staff")
	case errors.Is(err, ErrInvalidReason), errors.Is(err, ErrInvalidAccessLevel):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "assignment not found")
	default:
		h.logger.Error(message, slog.Any("error", err))
		httpx.ProblemCode(w, http.StatusInternalServerError, httpx.CodeInternal, "")
	}
}

func metaFrom(r *http.Request) RequestMeta {
	return RequestMeta{SourceIP: r.RemoteAddr, UserAgent: r.UserAgent()}
}

func toView(a Assignment) assignmentView {
	return assignmentView{
		ID:            a.ID,
		PatientID:     a.PatientID,
		StaffID:       a.StaffID,
		StaffUsername: a.StaffUsername,
		StaffPosition: a.StaffPosition,
		AssignedBy:    a.AssignedBy,
		Reason:        a.Reason,
		AccessLevel:   a.AccessLevel,
		StartDate:     a.StartDate,
		EndDate:       a.EndDate,
		Status:        a.Status,
	}
}

func toViews(assignments []Assignment) []assignmentView {
	views := make([]assignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, toView(a))
	}
	return views
}
