package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/platform/httpx"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

// PrincipalResolver is the slice of the principal resolver the chain needs.
type PrincipalResolver interface {
	Resolve(ctx context.Context, rawToken string) (principal.Principal, error)
}

// DecisionCounter observes ownership-check outcomes.
type DecisionCounter interface {
	IncDecision(result string)
}

// Checkpoints wires the ordered authorization middleware chain. Each
// checkpoint is total: it either calls through or terminates the request
// with one of the documented status and code pairs.
type Checkpoints struct {
	Logger    *slog.Logger
	Resolver  PrincipalResolver
	Recorder  Recorder
	Gate      *Gate
	Decisions DecisionCounter
}

type decisionContextKey struct{}

// ContextWithDecision stores a gate decision in context.
func ContextWithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey{}, d)
}

// DecisionFromContext extracts the gate decision from context.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(Decision)
	return d, ok
}

// ResolvePrincipal verifies the bearer credential and loads the acting staff
// identity into context, failing closed on every problem. Credential
// failures leave a LOGIN_FAILED entry so they feed the suspicious-activity
// view.
func (c Checkpoints) ResolvePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		p, err := c.Resolver.Resolve(r.Context(), token)
		if err != nil {
			c.rejectCredential(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(principal.ContextWith(r.Context(), p)))
	})
}

// RequireAdmin terminates requests from non-administrators.
func (c Checkpoints) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal.FromContext(r.Context())
		if !ok {
			httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
			return
		}
		if !principal.IsAdministrator(p) {
			c.recordDenied(r, p, audit.ActionUnauthorizedAccess, map[string]any{"reason": "administrator required"})
			httpx.ProblemCode(w, http.StatusForbidden, httpx.CodeAdminRequired, "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole is the coarse-grained capability gate: does the role permit
// this class of operation at all. Administrators bypass it.
func (c Checkpoints) RequireRole(write bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
				return
			}
			if principal.IsAdministrator(p) {
				next.ServeHTTP(w, r)
				return
			}
			if !RoleAllows(p.Position, write) {
				c.recordDenied(r, p, audit.ActionUnauthorizedAccess, map[string]any{
					"reason": "role lacks capability",
					"class":  classFor(write),
				})
				httpx.ProblemCode(w, http.StatusForbidden, httpx.CodeInsufficientPermissions, "role does not permit this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// VerifyOwnership runs the read-class ownership check for the patient named
// in the route.
func (c Checkpoints) VerifyOwnership(next http.Handler) http.Handler {
	return c.verify(next, false)
}

// VerifyWriteAccess runs the write-class ownership check, additionally
// denying holders of read-only assignments.
func (c Checkpoints) VerifyWriteAccess(next http.Handler) http.Handler {
	return c.verify(next, true)
}

func (c Checkpoints) verify(next http.Handler, write bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal.FromContext(r.Context())
		if !ok {
			httpx.ProblemCode(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
			return
		}
		patientID := chi.URLParam(r, "patientID")
		if patientID == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "patient id missing")
			return
		}

		decision, err := c.Gate.Authorize(r.Context(), p, patientID, write, metaFrom(r))
		if err != nil {
			// Inability to verify ownership never defaults to allow.
			if c.Logger != nil {
				c.Logger.Error("ownership check failed", slog.String("patient_id", patientID), slog.Any("error", err))
			}
			c.countDecision("error")
			httpx.ProblemCode(w, http.StatusInternalServerError, httpx.CodeInternal, "")
			return
		}
		if !decision.Allowed {
			c.countDecision("denied")
			switch {
			case errors.Is(decision.Reason, ErrReadOnlyAccess):
				httpx.ProblemCode(w, http.StatusForbidden, httpx.CodeReadOnlyAccess, "assignment permits read-only access")
			default:
				httpx.ProblemCode(w, http.StatusForbidden, httpx.CodeNoPatientAssignment, "no active assignment for this patient")
			}
			return
		}
		c.countDecision("allowed")
		next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), decision)))
	})
}

// HandleProbe reports the decision already made by the ownership checkpoint.
// Collaborating record handlers mount their own logic in this position.
func HandleProbe(w http.ResponseWriter, r *http.Request) {
	decision, ok := DecisionFromContext(r.Context())
	if !ok {
		httpx.ProblemCode(w, http.StatusInternalServerError, httpx.CodeInternal, "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"access": "granted", "tag": decision.Tag})
}

func (c Checkpoints) rejectCredential(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnauthorized
	code := httpx.CodeUnauthorized
	switch {
	case errors.Is(err, principal.ErrNoCredential):
		// defaults
	case errors.Is(err, principal.ErrTokenExpired):
		code = httpx.CodeTokenExpired
	case errors.Is(err, principal.ErrTokenInvalid), errors.Is(err, principal.ErrNotFound):
		code = httpx.CodeInvalidToken
	case errors.Is(err, principal.ErrInactive):
		status = http.StatusForbidden
		code = httpx.CodeAccountInactive
	default:
		if c.Logger != nil {
			c.Logger.Error("resolve principal", slog.Any("error", err))
		}
		httpx.ProblemCode(w, http.StatusInternalServerError, httpx.CodeInternal, "")
		return
	}

	if c.Recorder != nil {
		c.Recorder.Record(r.Context(), audit.Entry{
			Action:       audit.ActionLoginFailed,
			ResourceType: audit.ResourceRequest,
			ResourceID:   r.URL.Path,
			Result:       audit.ResultDenied,
			Details:      map[string]any{"code": code},
			SourceIP:     r.RemoteAddr,
			UserAgent:    r.UserAgent(),
		})
	}
	httpx.ProblemCode(w, status, code, "")
}

func (c Checkpoints) countDecision(result string) {
	if c.Decisions != nil {
		c.Decisions.IncDecision(result)
	}
}

func (c Checkpoints) recordDenied(r *http.Request, p principal.Principal, action string, details map[string]any) {
	if c.Recorder == nil {
		return
	}
	c.Recorder.Record(r.Context(), audit.Entry{
		ActorID:       p.ID,
		ActorUsername: p.Username,
		ActorRole:     p.Position,
		Action:        action,
		ResourceType:  audit.ResourceRequest,
		ResourceID:    r.URL.Path,
		Result:        audit.ResultDenied,
		Details:       details,
		SourceIP:      r.RemoteAddr,
		UserAgent:     r.UserAgent(),
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func metaFrom(r *http.Request) RequestMeta {
	return RequestMeta{SourceIP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
