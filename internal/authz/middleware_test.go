package authz

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ehr/meridian-ehr/internal/assignment"
	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

type stubResolver struct {
	principals map[string]principal.Principal
	err        error
}

func (s *stubResolver) Resolve(_ context.Context, rawToken string) (principal.Principal, error) {
	if s.err != nil {
		return principal.Principal{}, s.err
	}
	if rawToken == "" {
		return principal.Principal{}, principal.ErrNoCredential
	}
	p, ok := s.principals[rawToken]
	if !ok {
		return principal.Principal{}, principal.ErrTokenInvalid
	}
	return p, nil
}

func testRouter(resolver PrincipalResolver, reader AssignmentReader, rec Recorder) http.Handler {
	checkpoints := Checkpoints{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Resolver: resolver,
		Recorder: rec,
		Gate:     NewGate(reader, rec),
	}

	r := chi.NewRouter()
	r.Use(checkpoints.ResolvePrincipal)
	r.Route("/patients/{patientID}", func(r chi.Router) {
		r.With(checkpoints.RequireRole(false), checkpoints.VerifyOwnership).Get("/access", HandleProbe)
		r.With(checkpoints.RequireRole(true), checkpoints.VerifyWriteAccess).Post("/access", HandleProbe)
	})
	r.Route("/assignments", func(r chi.Router) {
		r.Use(checkpoints.RequireAdmin)
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})
	return r
}

func newStubResolver() *stubResolver {
	return &stubResolver{principals: map[string]principal.Principal{
		"admin-token":  adminPrincipal,
		"doctor-token": doctorPrincipal,
		"clerk-token":  {ID: "clerk-1", Username: "b.front", Position: "receptionist", Status: principal.StatusAccepted},
	}}
}

func get(t *testing.T, handler http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, handler, http.MethodGet, target, token)
}

func do(t *testing.T, handler http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestMissingCredential(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{}, rec)

	res := get(t, handler, "/patients/pat-1/access", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "UNAUTHORIZED")

	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ActionLoginFailed, rec.entries[0].Action)
	require.Equal(t, audit.ResultDenied, rec.entries[0].Result)
}

func TestExpiredCredential(t *testing.T) {
	rec := &captureRecorder{}
	resolver := newStubResolver()
	resolver.err = principal.ErrTokenExpired
	handler := testRouter(resolver, &stubAssignmentReader{}, rec)

	res := get(t, handler, "/patients/pat-1/access", "whatever")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "TOKEN_EXPIRED")
}

func TestInactiveAccount(t *testing.T) {
	rec := &captureRecorder{}
	resolver := newStubResolver()
	resolver.err = principal.ErrInactive
	handler := testRouter(resolver, &stubAssignmentReader{}, rec)

	res := get(t, handler, "/patients/pat-1/access", "whatever")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "ACCOUNT_INACTIVE")
}

func TestAdminRouteRejectsNonAdmin(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{}, rec)

	res := get(t, handler, "/assignments/", "doctor-token")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "ADMIN_REQUIRED")

	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ActionUnauthorizedAccess, rec.entries[0].Action)

	res = get(t, handler, "/assignments/", "admin-token")
	require.Equal(t, http.StatusOK, res.Code)
}

func TestWriteRequiresMedicalRole(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{}, rec)

	res := do(t, handler, http.MethodPost, "/patients/pat-1/access", "clerk-token")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "INSUFFICIENT_PERMISSIONS")
}

func TestOwnershipDeniedWithoutAssignment(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{active: nil}, rec)

	res := get(t, handler, "/patients/pat-1/access", "doctor-token")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "NO_PATIENT_ASSIGNMENT")

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	require.Equal(t, audit.ActionUnauthorizedAccess, entry.Action)
	require.Equal(t, audit.ResultDenied, entry.Result)
	require.Equal(t, doctorPrincipal.ID, entry.ActorID)
	require.Equal(t, "pat-1", entry.ResourceID)
}

func TestOwnershipReadOnlyWriteDenied(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{active: activeAssignment(assignment.AccessReadOnly)}, rec)

	res := do(t, handler, http.MethodPost, "/patients/pat-1/access", "doctor-token")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "READ_ONLY_ACCESS")
}

func TestOwnershipGranted(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{active: activeAssignment(assignment.AccessFull)}, rec)

	res := get(t, handler, "/patients/pat-1/access", "doctor-token")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"access":"granted"`)
	require.Contains(t, res.Body.String(), TagAssignedAccess)

	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ActionViewPatient, rec.entries[0].Action)
	require.Equal(t, audit.ResultSuccess, rec.entries[0].Result)
}

func TestAdminOverrideOnPatientRoute(t *testing.T) {
	rec := &captureRecorder{}
	handler := testRouter(newStubResolver(), &stubAssignmentReader{active: nil}, rec)

	res := get(t, handler, "/patients/pat-1/access", "admin-token")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), TagAdminOverride)
}

func TestBearerTokenParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	require.Equal(t, "abc.def.ghi", bearerToken(req))

	req.Header.Set("Authorization", "bearer abc")
	require.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Empty(t, bearerToken(req))
}
