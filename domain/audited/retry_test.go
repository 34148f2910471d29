package audited

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditz/errors"
	"auditz/logging"
	"auditz/patterns/retry"
)

// flakySink 前 failures 次写入返回 err
type flakySink struct {
	MemorySink
	failures int
	calls    int
	err      error
}

func (s *flakySink) Append(ctx context.Context, revisions ...Revision) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return s.MemorySink.Append(ctx, revisions...)
}

func quickRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySink_RetriesTransientErrors(t *testing.T) {
	inner := &flakySink{failures: 2, err: errors.NewError(errors.ErrCodeQueue, "stream unavailable")}
	logger := logging.NewRecordingLogger()
	sink := &RetrySink{Sink: inner, Config: quickRetry(3), Logger: logger}

	require.NoError(t, sink.Append(context.Background(), Revision{ID: "r1", TableName: "Book"}))
	assert.Equal(t, 3, inner.calls)
	assert.Len(t, inner.Revisions(), 1)
	assert.Len(t, logger.ByLevel(logging.WarnLevel), 2)

	got, err := sink.List(context.Background(), RevisionQuery{TableName: "Book"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRetrySink_GivesUp(t *testing.T) {
	inner := &flakySink{failures: 10, err: errors.NewError(errors.ErrCodeNetwork, "down")}
	sink := &RetrySink{Sink: inner, Config: quickRetry(2), Logger: logging.NewNoopLogger()}

	err := sink.Append(context.Background(), Revision{ID: "r1"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeNetwork))
	assert.Equal(t, 2, inner.calls)
}

func TestRetrySink_PermanentErrorNotRetried(t *testing.T) {
	inner := &flakySink{failures: 10, err: errors.NewValidationError("bad revision")}
	sink := &RetrySink{Sink: inner, Config: quickRetry(5), Logger: logging.NewNoopLogger()}

	err := sink.Append(context.Background(), Revision{ID: "r1"})
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, 1, inner.calls)
}

func TestRetrySink_Passthrough(t *testing.T) {
	ctx := context.Background()
	m := &migratingSink{}
	sink := &RetrySink{Sink: m, Config: quickRetry(2)}
	require.NoError(t, sink.Migrate(ctx))
	assert.True(t, m.migrated)

	writeOnly := &RetrySink{Sink: failingSink{}, Config: quickRetry(2)}
	require.NoError(t, writeOnly.Migrate(ctx))
	_, err := writeOnly.List(ctx, RevisionQuery{})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestWithRetry(t *testing.T) {
	inner := NewMemorySink()
	assert.Same(t, IRevisionSink(inner), WithRetry(inner, retry.Config{MaxAttempts: 1}))
	assert.IsType(t, &RetrySink{}, WithRetry(inner, quickRetry(3)))
}

func TestRetryProvider(t *testing.T) {
	p := &fakeProvider{}
	sink, err := RetryProvider{Provider: p, Config: quickRetry(3)}.RevisionSink(RevisionsEnabled{Name: "book_revisions"})
	require.NoError(t, err)
	assert.Equal(t, "book_revisions", p.policy.Name)

	wrapped, ok := sink.(*RetrySink)
	require.True(t, ok)
	assert.Same(t, p.sink, wrapped.Sink)
}
