package principal

import (
	"context"
	"log/slog"
	"time"
)

// Resolver turns a bearer credential into an active Principal, failing closed
// on every verification or lookup problem.
type Resolver struct {
	verifier        *Verifier
	repo            Repository
	logger          *slog.Logger
	inactivityLimit time.Duration
	now             func() time.Time
}

// NewResolver constructs a Resolver. A zero inactivityLimit disables the
// inactivity check and leaves expiry to the token TTL alone.
func NewResolver(verifier *Verifier, repo Repository, logger *slog.Logger, inactivityLimit time.Duration) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		verifier:        verifier,
		repo:            repo,
		logger:          logger,
		inactivityLimit: inactivityLimit,
		now:             time.Now,
	}
}

// Resolve verifies the credential, loads the staff identity and checks its
// status. On success it records a last-seen timestamp.
//
// The inactivity clock starts at token issuance: a staff row that has never
// been seen counts as last active at the token's issued-at, never as "first
// activity, allow".
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (Principal, error) {
	claims, err := r.verifier.Verify(rawToken)
	if err != nil {
		return Principal{}, err
	}

	p, err := r.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	if !p.Active() {
		return Principal{}, ErrInactive
	}

	now := r.now().UTC()
	if r.inactivityLimit > 0 {
		lastActive := p.LastSeenAt
		if lastActive.IsZero() && claims.IssuedAt != nil {
			lastActive = claims.IssuedAt.Time
		}
		if !lastActive.IsZero() && now.Sub(lastActive) > r.inactivityLimit {
			return Principal{}, ErrTokenExpired
		}
	}

	if err := r.repo.TouchLastSeen(ctx, p.ID, now); err != nil {
		// Last-seen is advisory; a failed write never blocks resolution.
		r.logger.Warn("touch last seen", slog.String("staff_id", p.ID), slog.Any("error", err))
	}
	p.LastSeenAt = now

	return p, nil
}
