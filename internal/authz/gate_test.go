package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ehr/meridian-ehr/internal/assignment"
	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

type stubAssignmentReader struct {
	active *assignment.Assignment
	err    error
}

func (s *stubAssignmentReader) ActiveForPair(context.Context, string, string) (*assignment.Assignment, error) {
	return s.active, s.err
}

type captureRecorder struct {
	entries []audit.Entry
}

func (r *captureRecorder) Record(_ context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

var (
	adminPrincipal  = principal.Principal{ID: "admin-1", Username: "t.admin", Admin: true, Position: "administrator", Status: principal.StatusAdministrator}
	doctorPrincipal = principal.Principal{ID: "doc-1", Username: "dr.chen", Position: "doctor", Status: principal.StatusAccepted}
)

func gateMeta() RequestMeta {
	return RequestMeta{SourceIP: "10.0.0.9", UserAgent: "meridian-test"}
}

func activeAssignment(level string) *assignment.Assignment {
	return &assignment.Assignment{
		ID:          "asg-1",
		PatientID:   "pat-1",
		StaffID:     doctorPrincipal.ID,
		AccessLevel: level,
		Status:      assignment.StatusActive,
	}
}

func TestAuthorizeAdminOverride(t *testing.T) {
	rec := &captureRecorder{}
	gate := NewGate(&stubAssignmentReader{}, rec)

	for _, write := range []bool{false, true} {
		rec.entries = nil
		decision, err := gate.Authorize(context.Background(), adminPrincipal, "pat-1", write, gateMeta())
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.Equal(t, TagAdminOverride, decision.Tag)

		require.Len(t, rec.entries, 1)
		require.Equal(t, audit.ResultSuccess, rec.entries[0].Result)
		require.Equal(t, TagAdminOverride, rec.entries[0].Details["tag"])
	}
}

func TestAuthorizeNoAssignment(t *testing.T) {
	for _, write := range []bool{false, true} {
		rec := &captureRecorder{}
		gate := NewGate(&stubAssignmentReader{active: nil}, rec)

		decision, err := gate.Authorize(context.Background(), doctorPrincipal, "pat-1", write, gateMeta())
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.ErrorIs(t, decision.Reason, ErrNoActiveAssignment)

		require.Len(t, rec.entries, 1)
		entry := rec.entries[0]
		require.Equal(t, audit.ActionUnauthorizedAccess, entry.Action)
		require.Equal(t, audit.ResultDenied, entry.Result)
		require.Equal(t, "pat-1", entry.ResourceID)
	}
}

func TestAuthorizeAssignedAccess(t *testing.T) {
	rec := &captureRecorder{}
	gate := NewGate(&stubAssignmentReader{active: activeAssignment(assignment.AccessFull)}, rec)

	decision, err := gate.Authorize(context.Background(), doctorPrincipal, "pat-1", true, gateMeta())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, TagAssignedAccess, decision.Tag)

	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ActionModifyPatient, rec.entries[0].Action)
	require.Equal(t, audit.ResultSuccess, rec.entries[0].Result)
}

func TestAuthorizeReadOnlyWriteDenied(t *testing.T) {
	rec := &captureRecorder{}
	gate := NewGate(&stubAssignmentReader{active: activeAssignment(assignment.AccessReadOnly)}, rec)

	// Reads pass.
	decision, err := gate.Authorize(context.Background(), doctorPrincipal, "pat-1", false, gateMeta())
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Writes are denied with a distinct reason.
	decision, err = gate.Authorize(context.Background(), doctorPrincipal, "pat-1", true, gateMeta())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.ErrorIs(t, decision.Reason, ErrReadOnlyAccess)

	require.Len(t, rec.entries, 2)
	require.Equal(t, audit.ActionViewPatient, rec.entries[0].Action)
	require.Equal(t, audit.ActionUnauthorizedAccess, rec.entries[1].Action)
	require.Equal(t, ClassWrite, rec.entries[1].Details["class"])
}

func TestAuthorizeLapsedEmergencyGrant(t *testing.T) {
	// An expired time-boxed grant that the sweeper has not flipped yet must
	// not count as active.
	past := time.Now().UTC().Add(-time.Hour)
	lapsed := activeAssignment(assignment.AccessFull)
	lapsed.Reason = assignment.ReasonEmergency
	lapsed.EndDate = &past

	rec := &captureRecorder{}
	gate := NewGate(&stubAssignmentReader{active: lapsed}, rec)

	decision, err := gate.Authorize(context.Background(), doctorPrincipal, "pat-1", false, gateMeta())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.ErrorIs(t, decision.Reason, ErrNoActiveAssignment)
}

func TestAuthorizeStoreFailureFailsClosed(t *testing.T) {
	rec := &captureRecorder{}
	gate := NewGate(&stubAssignmentReader{err: errors.New("connection reset")}, rec)

	decision, err := gate.Authorize(context.Background(), doctorPrincipal, "pat-1", false, gateMeta())
	require.Error(t, err)
	require.False(t, decision.Allowed)

	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ResultError, rec.entries[0].Result)
}

func TestRoleAllows(t *testing.T) {
	cases := []struct {
		position string
		write    bool
		want     bool
	}{
		{"doctor", true, true},
		{"nurse", true, true},
		{"doctor", false, true},
		{"receptionist", false, true},
		{"receptionist", true, false},
		{"lab technician", true, false},
		{"", false, true},
		{"", true, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, RoleAllows(tc.position, tc.write), "%s write=%v", tc.position, tc.write)
	}
}
