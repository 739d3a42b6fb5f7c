package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

// Recorder is the slice of the audit recorder this service needs.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Config carries the tunables for assignment lifecycle rules.
type Config struct {
	EmergencyWindow  time.Duration
	MinJustification int
}

func (c Config) withDefaults() Config {
	if c.EmergencyWindow <= 0 {
		c.EmergencyWindow = 24 * time.Hour
	}
	if c.MinJustification <= 0 {
		c.MinJustification = 20
	}
	return c
}

// medicalStaff lists the roles allowed to hold patient assignments and
// declare emergency access.
var medicalStaff = map[string]struct{}{
	"doctor": {},
	"nurse":  {},
}

// IsMedicalStaff reports whether the position belongs to the fixed
// medical-staff set.
func IsMedicalStaff(position string) bool {
	_, ok := medicalStaff[strings.ToLower(strings.TrimSpace(position))]
	return ok
}

// Service owns assignment lifecycle rules, including the emergency override.
type Service struct {
	store    Store
	recorder Recorder
	cfg      Config
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, recorder Recorder, cfg Config) *Service {
	return &Service{store: store, recorder: recorder, cfg: cfg.withDefaults(), now: time.Now}
}

// CreateRequest carries a validated admin assignment creation.
type CreateRequest struct {
	PatientID     string
	StaffID       string
	StaffUsername string
	StaffPosition string
	Reason        string
	AccessLevel   string
	EndDate       *time.Time
}

// RequestMeta describes where a request came from, for the audit trail.
type RequestMeta struct {
	SourceIP  string
	UserAgent string
}

// Create inserts a new assignment on behalf of an administrator. Duplicate
// ACTIVE pairs surface as ErrAlreadyAssigned via the store's conditional
// insert, not through a racy prior read.
func (s *Service) Create(ctx context.Context, actor principal.Principal, req CreateRequest, meta RequestMeta) (Assignment, error) {
	if !ValidReason(req.Reason) {
		return Assignment{}, ErrInvalidReason
	}
	if !ValidAccessLevel(req.AccessLevel) {
		return Assignment{}, ErrInvalidAccessLevel
	}

	now := s.now().UTC()
	a := Assignment{
		ID:            uuid.NewString(),
		PatientID:     req.PatientID,
		StaffID:       req.StaffID,
		StaffUsername: req.StaffUsername,
		StaffPosition: req.StaffPosition,
		AssignedBy:    actor.ID,
		Reason:        req.Reason,
		AccessLevel:   req.AccessLevel,
		StartDate:     now,
		EndDate:       req.EndDate,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, a); err != nil {
		s.record(ctx, actor, audit.Entry{
			Action:       audit.ActionAssignStaffToPatient,
			ResourceType: audit.ResourcePatient,
			ResourceID:   req.PatientID,
			Result:       resultForError(err),
			Details:      map[string]any{"staffId": req.StaffID, "reason": req.Reason, "error": err.Error()},
		}, meta)
		return Assignment{}, err
	}

	s.record(ctx, actor, audit.Entry{
		Action:       audit.ActionAssignStaffToPatient,
		ResourceType: audit.ResourcePatient,
		ResourceID:   req.PatientID,
		Result:       audit.ResultSuccess,
		Details: map[string]any{
			"assignmentId": a.ID,
			"staffId":      a.StaffID,
			"reason":       a.Reason,
			"accessLevel":  a.AccessLevel,
		},
	}, meta)
	return a, nil
}

// Revoke terminates an assignment. Revoking an already terminal assignment is
// a no-op success and writes no additional audit entry.
func (s *Service) Revoke(ctx context.Context, actor principal.Principal, id string, meta RequestMeta) (Assignment, error) {
	a, changed, err := s.store.Revoke(ctx, id, s.now().UTC())
	if err != nil {
		if err != ErrNotFound {
			s.record(ctx, actor, audit.Entry{
				Action:       audit.ActionRevokeAssignment,
				ResourceType: audit.ResourceAssignment,
				ResourceID:   id,
				Result:       audit.ResultError,
				Details:      map[string]any{"error": err.Error()},
			}, meta)
		}
		return Assignment{}, err
	}
	if changed {
		s.record(ctx, actor, audit.Entry{
			Action:       audit.ActionRevokeAssignment,
			ResourceType: audit.ResourceAssignment,
			ResourceID:   a.ID,
			Result:       audit.ResultSuccess,
			Details:      map[string]any{"patientId": a.PatientID, "staffId": a.StaffID},
		}, meta)
	}
	return a, nil
}

// DeclareEmergency creates a self-granted, time-boxed FULL assignment for a
// medical-staff principal. The justification is carried verbatim into a
// high-visibility audit entry intended for later human review.
func (s *Service) DeclareEmergency(ctx context.Context, actor principal.Principal, patientID, justification string, meta RequestMeta) (Assignment, error) {
	if !IsMedicalStaff(actor.Position) {
		s.record(ctx, actor, audit.Entry{
			Action:       audit.ActionEmergencyAccess,
			ResourceType: audit.ResourcePatient,
			ResourceID:   patientID,
			Result:       audit.ResultDenied,
			Details:      map[string]any{"reason": "not medical staff"},
		}, meta)
		return Assignment{}, ErrNotMedicalStaff
	}
	justification = strings.TrimSpace(justification)
	if len(justification) < s.cfg.MinJustification {
		return Assignment{}, ErrInsufficientJustification
	}

	now := s.now().UTC()
	expires := now.Add(s.cfg.EmergencyWindow)
	a := Assignment{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		StaffID:       actor.ID,
		StaffUsername: actor.Username,
		StaffPosition: actor.Position,
		AssignedBy:    actor.ID,
		Reason:        ReasonEmergency,
		AccessLevel:   AccessFull,
		StartDate:     now,
		EndDate:       &expires,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, a); err != nil {
		s.record(ctx, actor, audit.Entry{
			Action:        audit.ActionEmergencyAccess,
			ResourceType:  audit.ResourcePatient,
			ResourceID:    patientID,
			Result:        resultForError(err),
			Justification: justification,
			Details:       map[string]any{"error": err.Error()},
		}, meta)
		return Assignment{}, err
	}

	s.record(ctx, actor, audit.Entry{
		Action:        audit.ActionEmergencyAccess,
		ResourceType:  audit.ResourcePatient,
		ResourceID:    patientID,
		Result:        audit.ResultSuccess,
		Justification: justification,
		Details: map[string]any{
			"assignmentId": a.ID,
			"expiresAt":    expires.Format(time.RFC3339),
		},
	}, meta)
	return a, nil
}

// ActiveForStaff lists a staff member's current assignments.
func (s *Service) ActiveForStaff(ctx context.Context, staffID string) ([]Assignment, error) {
	return s.store.ActiveForStaff(ctx, staffID)
}

// CareTeam lists the active care team for a patient.
func (s *Service) CareTeam(ctx context.Context, patientID string) ([]Assignment, error) {
	return s.store.ActiveTeamForPatient(ctx, patientID)
}

// PatientHistory lists every assignment ever held against a patient.
func (s *Service) PatientHistory(ctx context.Context, patientID string) ([]Assignment, error) {
	return s.store.HistoryForPatient(ctx, patientID)
}

// AccessiblePatients returns the patient ids the principal may list.
// Non-admin callers only ever see patients they hold an active assignment
// for; the filter happens here, before any patient row is fetched.
func (s *Service) AccessiblePatients(ctx context.Context, actor principal.Principal) ([]string, error) {
	if principal.IsAdministrator(actor) {
		return s.store.DistinctPatients(ctx)
	}
	assignments, err := s.store.ActiveForStaff(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.PatientID]; ok {
			continue
		}
		seen[a.PatientID] = struct{}{}
		ids = append(ids, a.PatientID)
	}
	return ids, nil
}

// ExpireOverdue flips lapsed time-boxed assignments; hygiene only.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.store.ExpireOverdue(ctx, s.now().UTC())
}

func (s *Service) record(ctx context.Context, actor principal.Principal, entry audit.Entry, meta RequestMeta) {
	if s.recorder == nil {
		return
	}
	entry.ActorID = actor.ID
	entry.ActorUsername = actor.Username
	entry.ActorRole = actor.Position
	entry.SourceIP = meta.SourceIP
	entry.UserAgent = meta.UserAgent
	s.recorder.Record(ctx, entry)
}

func resultForError(err error) string {
	if err == ErrAlreadyAssigned {
		return audit.ResultDenied
	}
	return audit.ResultError
}
