package audit

import "time"

// Closed action vocabulary. New actions require a schema-free change here
// only, but consumers filter on these strings so additions are deliberate.
const (
	ActionViewPatient          = "VIEW_PATIENT"
	ActionModifyPatient        = "MODIFY_PATIENT"
	ActionUnauthorizedAccess   = "UNAUTHORIZED_ACCESS_ATTEMPT"
	ActionAssignStaffToPatient = "ASSIGN_STAFF_TO_PATIENT"
	ActionRevokeAssignment     = "REVOKE_ASSIGNMENT"
	ActionEmergencyAccess      = "EMERGENCY_ACCESS_DECLARED"
	ActionLoginFailed          = "LOGIN_FAILED"
	ActionInjectionAttempt     = "INJECTION_ATTEMPT"
	ActionRateLimited          = "RATE_LIMITED"
)

// Decision results.
const (
	ResultSuccess = "SUCCESS"
	ResultDenied  = "DENIED"
	ResultError   = "ERROR"
)

// Resource types referenced by entries.
const (
	ResourcePatient    = "PATIENT"
	ResourceAssignment = "ASSIGNMENT"
	ResourceStaff      = "STAFF"
	ResourceRequest    = "REQUEST"
)

// Entry is an immutable record of one authorization decision or assignment
// lifecycle event. Nothing in this subsystem updates or deletes an Entry.
type Entry struct {
	ID            string
	ActorID       string
	ActorUsername string
	ActorRole     string
	Action        string
	ResourceType  string
	ResourceID    string
	Result        string
	Details       map[string]any
	Justification string
	SourceIP      string
	UserAgent     string
	OccurredAt    time.Time
}

// Filters narrows audit queries. Zero values mean "no filter".
type Filters struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Result       string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// ActionCount aggregates decisions for one action over a window.
type ActionCount struct {
	Action string
	Result string
	Count  int64
}

// Result wraps a page of entries with paging metadata.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// PagingInfo mirrors the listing pagination contract.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}
