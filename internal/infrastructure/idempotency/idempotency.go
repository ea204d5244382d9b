// Package idempotency lets clients resubmit a mutating request with the same
// key and receive the stored response instead of a second posting.
package idempotency

import (
	"context"
	"encoding/hex"
	"net/http"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may stay unfinished before another
// request reclaims it.
const StaleAfter = time.Minute

// Request identifies one attempt of an operation.
type Request struct {
	Key         string
	UserID      string
	Operation   string
	RequestHash string
}

// Replay is the cached HTTP response of a finished operation.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys.
type Store interface {
	// Acquire returns (nil, nil) when the caller now owns the key and must run
	// the operation, or the stored Replay when it already finished.
	// A key that is still running yields IdempotencyConflict; a key reused for
	// a different request yields IdempotencyMismatch.
	Acquire(ctx context.Context, req Request) (*Replay, error)

	// Complete stores the response of a successful operation.
	Complete(ctx context.Context, key string, replay Replay) error

	// Fail stores the response of a failed operation.
	Fail(ctx context.Context, key string, replay Replay) error

	// Release drops a pending key so the request can be retried, used for
	// failures that must not be replayed.
	Release(ctx context.Context, key string) error

	// CleanupExpired removes records past their TTL.
	CleanupExpired(ctx context.Context) (int64, error)
}

// Fingerprint hashes a request body.
func Fingerprint(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NormalizeReplay fills defaults for records stored without status or type.
func NormalizeReplay(r Replay) *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return &r
}
