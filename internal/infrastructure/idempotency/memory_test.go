package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	req := Request{Key: "k1", UserID: "u1", Operation: "POST /api/v1/ledger/entries", RequestHash: Fingerprint([]byte(`{"q":1}`))}

	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.Acquire(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	require.NoError(t, s.Complete(ctx, "k1", Replay{StatusCode: 201, Body: []byte(`{"id":"x"}`)}))

	replay, err = s.Acquire(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, "application/json", replay.ContentType)
	assert.JSONEq(t, `{"id":"x"}`, string(replay.Body))
}

func TestMemoryStore_MismatchAndStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	req := Request{Key: "k1", UserID: "u1", Operation: "POST /x", RequestHash: "a"}
	_, err := s.Acquire(ctx, req)
	require.NoError(t, err)

	other := req
	other.RequestHash = "b"
	_, err = s.Acquire(ctx, other)
	require.Error(t, err)
	assert.False(t, apperror.IsRetryable(err))

	now = now.Add(2 * StaleAfter)
	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)

	now = now.Add(2 * time.Hour)
	removed, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestMemoryStore_ReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	req := Request{Key: "k1", UserID: "u1", Operation: "POST /x", RequestHash: "a"}

	_, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k1"))

	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)

	require.NoError(t, s.Complete(ctx, "k1", Replay{StatusCode: 200, Body: []byte(`{}`)}))
	require.NoError(t, s.Release(ctx, "k1"))
	replay, err = s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.NotNil(t, replay)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint([]byte("a")), Fingerprint([]byte("a")))
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
	assert.Len(t, Fingerprint(nil), 64)
}
