package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingStore struct {
	stubAuditStore
	insertErr error
}

func (s *failingStore) Insert(ctx context.Context, entry Entry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.stubAuditStore.Insert(ctx, entry)
}

type failureCount struct {
	n int
}

func (c *failureCount) IncAuditWriteFailure() { c.n++ }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordFillsIdentityAndTimestamp(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, quietLogger(), nil, time.Second)

	rec.Record(context.Background(), Entry{Action: ActionViewPatient, Result: ResultSuccess})

	require.Len(t, store.entries, 1)
	require.NotEmpty(t, store.entries[0].ID)
	require.False(t, store.entries[0].OccurredAt.IsZero())
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := &failingStore{insertErr: errors.New("disk full")}
	counter := &failureCount{}
	rec := NewRecorder(store, quietLogger(), counter, time.Second)

	// Must not panic or surface the error.
	rec.Record(context.Background(), Entry{Action: ActionModifyPatient, Result: ResultSuccess})
	require.Equal(t, 1, counter.n)
}

func TestRecordSurvivesCancelledRequestContext(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, quietLogger(), nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, Entry{Action: ActionEmergencyAccess, Result: ResultSuccess})

	require.Len(t, store.entries, 1)
}
