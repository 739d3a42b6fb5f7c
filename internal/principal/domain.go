package principal

import (
	"errors"
	"strings"
	"time"
)

// Staff account statuses. Only administrators and accepted staff may act.
const (
	StatusAdministrator = "administrator"
	StatusAccepted      = "accepted"
	StatusPending       = "pending"
	StatusRejected      = "rejected"
)

// Sentinel errors for credential resolution. Each maps to a distinct
// response code so denial causes stay distinguishable in the audit trail.
var (
	ErrNoCredential = errors.New("principal: credential missing")
	ErrTokenExpired = errors.New("principal: credential expired")
	ErrTokenInvalid = errors.New("principal: credential invalid")
	ErrNotFound     = errors.New("principal: staff not found")
	ErrInactive     = errors.New("principal: staff inactive")
)

// Principal is the resolved identity acting on a request. It is created at
// credential issuance and never mutated by this subsystem.
type Principal struct {
	ID         string
	Username   string
	Position   string
	Admin      bool
	Status     string
	LastSeenAt time.Time
}

// administratorRoles is the fixed set of position strings that confer
// administrator capability regardless of the stored flag.
var administratorRoles = map[string]struct{}{
	"admin":                {},
	"administrator":        {},
	"system administrator": {},
}

// IsAdministrator is the single admin predicate: the stored flag and the
// role-string membership check are ORed so no code path can trust only one
// signal.
func IsAdministrator(p Principal) bool {
	if p.Admin {
		return true
	}
	_, ok := administratorRoles[strings.ToLower(strings.TrimSpace(p.Position))]
	return ok
}

// Active reports whether the account status permits acting at all.
func (p Principal) Active() bool {
	return p.Status == StatusAdministrator || p.Status == StatusAccepted
}
