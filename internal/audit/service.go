package audit

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	summaryLimit    = 200
)

// Service coordinates read access to the audit trail.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs an audit query service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns a filtered page of entries, newest first.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.store == nil {
		return Result{}, fmt.Errorf("audit: store not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to detect whether a next page exists.
	rows, err := s.store.List(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// UserHistory returns the trail for one acting user.
func (s *Service) UserHistory(ctx context.Context, userID string, filters Filters) (Result, error) {
	filters.UserID = userID
	return s.List(ctx, filters)
}

// PatientHistory returns every access decision recorded against one patient.
func (s *Service) PatientHistory(ctx context.Context, patientID string, filters Filters) (Result, error) {
	filters.ResourceType = ResourcePatient
	filters.ResourceID = patientID
	return s.List(ctx, filters)
}

// FailedLogins lists failed authentications over a trailing window.
func (s *Service) FailedLogins(ctx context.Context, window time.Duration) ([]Entry, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.store.FailedLogins(ctx, s.now().UTC().Add(-window), summaryLimit)
}

// SuspiciousActivity unions denied decisions, unauthorized-access attempts and
// failed authentications over a trailing window, newest first.
func (s *Service) SuspiciousActivity(ctx context.Context, window time.Duration) ([]Entry, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.store.Suspicious(ctx, s.now().UTC().Add(-window), summaryLimit)
}

// Summary aggregates decision counts per action with a success, denial and
// error breakdown over a trailing window.
func (s *Service) Summary(ctx context.Context, window time.Duration) ([]ActionSummary, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	counts, err := s.store.CountByAction(ctx, s.now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}
	byAction := make(map[string]*ActionSummary)
	var order []string
	for _, c := range counts {
		summary, ok := byAction[c.Action]
		if !ok {
			summary = &ActionSummary{Action: c.Action}
			byAction[c.Action] = summary
			order = append(order, c.Action)
		}
		summary.Total += c.Count
		switch c.Result {
		case ResultSuccess:
			summary.Succeeded += c.Count
		case ResultDenied:
			summary.Denied += c.Count
		case ResultError:
			summary.Failed += c.Count
		}
	}
	summaries := make([]ActionSummary, 0, len(order))
	for _, action := range order {
		summaries = append(summaries, *byAction[action])
	}
	return summaries, nil
}

// ActionSummary is the per-action aggregate exposed by Summary.
type ActionSummary struct {
	Action    string
	Total     int64
	Succeeded int64
	Denied    int64
	Failed    int64
}
