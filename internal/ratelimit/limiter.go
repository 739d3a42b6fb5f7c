// Package ratelimit provides a swappable per-principal request limiter. The
// counter sits behind an interface so a multi-instance deployment can back it
// with Redis instead of process-local state.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/platform/httpx"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
)

// Limiter decides whether one more request under the key fits in the current
// window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Recorder is the slice of the audit recorder the middleware needs.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Middleware enforces the limiter, keyed by principal when one is resolved
// and by source address otherwise.
type Middleware struct {
	Limiter  Limiter
	Logger   *slog.Logger
	Recorder Recorder
}

// Handler wraps next with the rate limit.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, p, identified := requestKey(r)
		allowed, err := m.Limiter.Allow(r.Context(), key)
		if err != nil {
			// A broken limiter must not block patient care; log and let the
			// request through.
			if m.Logger != nil {
				m.Logger.Warn("rate limiter unavailable", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			if m.Recorder != nil {
				entry := audit.Entry{
					Action:       audit.ActionRateLimited,
					ResourceType: audit.ResourceRequest,
					ResourceID:   r.URL.Path,
					Result:       audit.ResultDenied,
					SourceIP:     r.RemoteAddr,
					UserAgent:    r.UserAgent(),
				}
				if identified {
					entry.ActorID = p.ID
					entry.ActorUsername = p.Username
					entry.ActorRole = p.Position
				}
				m.Recorder.Record(r.Context(), entry)
			}
			httpx.ProblemCode(w, http.StatusTooManyRequests, httpx.CodeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestKey(r *http.Request) (string, principal.Principal, bool) {
	if p, ok := principal.FromContext(r.Context()); ok {
		return "principal:" + p.ID, p, true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host, principal.Principal{}, false
}
