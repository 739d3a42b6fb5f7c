package assignment

import (
	"errors"
	"time"
)

// Assignment reasons.
const (
	ReasonPrimaryCare        = "PRIMARY_CARE"
	ReasonConsultation       = "CONSULTATION"
	ReasonEmergency          = "EMERGENCY"
	ReasonTemporaryCoverage  = "TEMPORARY_COVERAGE"
	ReasonSpecialistReferral = "SPECIALIST_REFERRAL"
)

// Access levels.
const (
	AccessFull     = "FULL"
	AccessReadOnly = "READ_ONLY"
	AccessLimited  = "LIMITED"
)

// Assignment statuses. ACTIVE is the only non-terminal state; transitions go
// to COMPLETED or REVOKED and are never reversed.
const (
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
	StatusRevoked   = "REVOKED"
)

var (
	// ErrNotFound indicates the assignment does not exist.
	ErrNotFound = errors.New("assignment: not found")
	// ErrAlreadyAssigned indicates an ACTIVE assignment already exists for the pair.
	ErrAlreadyAssigned = errors.New("assignment: active assignment already exists")
	// ErrInsufficientJustification indicates an emergency justification below the minimum length.
	ErrInsufficientJustification = errors.New("assignment: justification too short")
	// ErrNotMedicalStaff indicates the principal's role may not hold assignments.
	ErrNotMedicalStaff = errors.New("assignment: medical staff role required")
	// ErrInvalidReason indicates an unknown assignment reason.
	ErrInvalidReason = errors.New("assignment: invalid reason")
	// ErrInvalidAccessLevel indicates an unknown access level.
	ErrInvalidAccessLevel = errors.New("assignment: invalid access level")
)

// Assignment binds one staff principal to one patient for a bounded period.
// Rows are never physically deleted; history is audit-relevant.
type Assignment struct {
	ID            string
	PatientID     string
	StaffID       string
	StaffUsername string
	StaffPosition string
	AssignedBy    string
	Reason        string
	AccessLevel   string
	StartDate     time.Time
	EndDate       *time.Time
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActiveAt reports whether the assignment grants access at the given instant.
// An EMERGENCY grant past its end date is inactive even while status still
// reads ACTIVE; expiry is passive, checked at read time.
func (a Assignment) ActiveAt(now time.Time) bool {
	if a.Status != StatusActive {
		return false
	}
	if a.EndDate != nil && !a.EndDate.After(now) {
		return false
	}
	return true
}

// Terminal reports whether the assignment reached a final state.
func (a Assignment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusRevoked
}

// ValidReason reports whether the reason belongs to the closed enum.
func ValidReason(reason string) bool {
	switch reason {
	case ReasonPrimaryCare, ReasonConsultation, ReasonEmergency, ReasonTemporaryCoverage, ReasonSpecialistReferral:
		return true
	}
	return false
}

// ValidAccessLevel reports whether the access level belongs to the closed enum.
func ValidAccessLevel(level string) bool {
	switch level {
	case AccessFull, AccessReadOnly, AccessLimited:
		return true
	}
	return false
}
