package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// FailureCounter counts audit writes that could not be persisted.
type FailureCounter interface {
	IncAuditWriteFailure()
}

// Recorder appends entries to the audit trail. Record never raises to the
// caller: audit durability is best-effort layered on top of patient care,
// never a precondition for it.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	failures FailureCounter
	timeout  time.Duration
	now      func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, logger *slog.Logger, failures FailureCounter, timeout time.Duration) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Recorder{store: store, logger: logger, failures: failures, timeout: timeout, now: time.Now}
}

// Record persists the entry. Persistence failures are logged to the
// operational channel, counted, and swallowed. The write runs on a context
// detached from the request's cancellation so an aborted request still leaves
// its trail, but with its own timeout so a slow store cannot block a decision.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Insert(writeCtx, entry); err != nil {
		if r.failures != nil {
			r.failures.IncAuditWriteFailure()
		}
		r.logger.Error("audit write failed",
			slog.String("action", entry.Action),
			slog.String("actor_id", entry.ActorID),
			slog.String("resource_id", entry.ResourceID),
			slog.Any("error", err),
		)
	}
}
