package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/platform/httpx"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

// maxBodyBytes bounds how much of a request body the guard will inspect.
const maxBodyBytes = 1 << 20

// Recorder is the slice of the audit recorder the guard needs.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Middleware scans request bodies and query parameters for operator-shaped
// keys before anything downstream runs. Detection terminates the request with
// 400 SECURITY_VIOLATION, emits a security warning, and leaves one audit
// entry carrying the offending path and source address.
type Middleware struct {
	Logger   *slog.Logger
	Recorder Recorder
	// ScalarFields lists top-level body fields that must never hold
	// structured values.
	ScalarFields []string
}

// Handler wraps next with the injection scan.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ScanValues(r.URL.Query()); err != nil {
			m.reject(w, r, err)
			return
		}

		if r.Body != nil && r.ContentLength != 0 && hasJSONBody(r) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unreadable request body")
				return
			}
			// Downstream handlers decode the body themselves.
			r.Body = io.NopCloser(bytes.NewReader(body))

			if len(bytes.TrimSpace(body)) > 0 {
				var decoded any
				if err := json.Unmarshal(body, &decoded); err != nil {
					httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
					return
				}
				if err := Scan(decoded); err != nil {
					m.reject(w, r, err)
					return
				}
				if obj, ok := decoded.(map[string]any); ok && len(m.ScalarFields) > 0 {
					if err := ScalarFields(obj, m.ScalarFields...); err != nil {
						m.reject(w, r, err)
						return
					}
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	var detected *ErrInjectionDetected
	path := ""
	if errors.As(err, &detected) {
		path = detected.Path
	}

	actorID, actorName, actorRole := "", "", ""
	if p, ok := principal.FromContext(r.Context()); ok {
		actorID, actorName, actorRole = p.ID, p.Username, p.Position
	}

	if m.Logger != nil {
		m.Logger.Warn("injection pattern detected",
			slog.String("path", path),
			slog.String("url", r.URL.Path),
			slog.String("source", r.RemoteAddr),
			slog.String("actor_id", actorID),
		)
	}
	if m.Recorder != nil {
		m.Recorder.Record(r.Context(), audit.Entry{
			ActorID:       actorID,
			ActorUsername: actorName,
			ActorRole:     actorRole,
			Action:        audit.ActionInjectionAttempt,
			ResourceType:  audit.ResourceRequest,
			ResourceID:    r.URL.Path,
			Result:        audit.ResultDenied,
			Details:       map[string]any{"offendingPath": path},
			SourceIP:      r.RemoteAddr,
			UserAgent:     r.UserAgent(),
		})
	}

	httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeSecurityViolation, "request contains a disallowed pattern")
}

func hasJSONBody(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return contentType == "" || strings.HasPrefix(contentType, "application/json")
}
