package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/pkg/logger"
)

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// maxOutboxRetries is the number of failed deliveries after which a message
// is parked as failed.
const maxOutboxRetries = 5

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, organization_id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID             id.ID        `db:"id"`
	OrganizationID string       `db:"organization_id"`
	AggregateType  string       `db:"aggregate_type"` // e.g. "stock_journal"
	AggregateID    id.ID        `db:"aggregate_id"`
	EventType      string       `db:"event_type"` // e.g. "journal.submitted"
	Payload        []byte       `db:"payload"`
	Status         OutboxStatus `db:"status"`
	RetryCount     int          `db:"retry_count"`
	LastError      *string      `db:"last_error"`
	NextRetryAt    *time.Time   `db:"next_retry_at"`
	CreatedAt      time.Time    `db:"created_at"`
	PublishedAt    *time.Time   `db:"published_at"`
}

// OutboxPublisher writes domain events to sys_outbox.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox within the current transaction.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.Event) error {
	tx := p.txManager.InTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	args, err := outboxArgs(ctx, event, time.Now().UTC())
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, insertOutboxSQL, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

func outboxArgs(ctx context.Context, event domain.Event, now time.Time) ([]any, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return []any{
		id.New(), appctx.GetOrganizationID(ctx), event.AggregateType, event.AggregateID,
		event.EventType, payload, OutboxStatusPending, now,
	}, nil
}

// OutboxHandler delivers outbox messages.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxHandlerFunc adapts a function to OutboxHandler.
type OutboxHandlerFunc func(ctx context.Context, msg *OutboxMessage) error

// Handle implements OutboxHandler.
func (f OutboxHandlerFunc) Handle(ctx context.Context, msg *OutboxMessage) error {
	return f(ctx, msg)
}

// OutboxRelay reads pending messages and hands them to a handler.
// Used by the background worker.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	return &OutboxRelay{
		txManager: txManager,
		batchSize: batchSize,
		handler:   handler,
	}
}

// BatchResult counts the outcome of one relay batch.
type BatchResult struct {
	Delivered int
	Failed    int
}

// ProcessBatch fetches and delivers pending messages.
// The rows stay locked until the batch finishes, so concurrent relays skip them.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		res = BatchResult{}
		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &messages, `
			SELECT id, organization_id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := r.processMessage(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				res.Delivered++
			} else {
				res.Failed++
			}
		}
		return nil
	})
	return res, err
}

// processMessage delivers one message and records the outcome.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) (bool, error) {
	q := r.txManager.GetQuerier(ctx)

	if handleErr := r.handler.Handle(ctx, msg); handleErr != nil {
		logger.Warn(ctx, "outbox delivery failed",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"retry", msg.RetryCount+1,
			"error", handleErr,
		)
		// Linear backoff
		nextRetry := time.Now().UTC().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		_, err := q.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
			WHERE id = $5
		`, handleErr.Error(), nextRetry, maxOutboxRetries, OutboxStatusFailed, msg.ID)
		if err != nil {
			return false, fmt.Errorf("update failed message: %w", err)
		}
		return false, nil
	}

	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	if err != nil {
		return false, fmt.Errorf("mark message published: %w", err)
	}
	return true, nil
}

// MoveToDLQ moves failed messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved
	`, OutboxStatusFailed, maxOutboxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}
