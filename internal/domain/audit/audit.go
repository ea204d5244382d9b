// Package audit defines the audit trail written alongside journal changes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"stockledger/internal/core/id"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Record is one stored audit entry.
type Record struct {
	ID         id.ID           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   id.ID           `json:"entityId"`
	Action     Action          `json:"action"`
	UserID     string          `json:"userId,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Logger records entity changes inside the caller's atomic unit, so an audit
// row exists exactly when the change it describes committed.
type Logger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any) error
}

// Reader returns the audit history of one entity, newest first.
type Reader interface {
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Record, error)
}

// Trail writes and reads the audit log.
type Trail interface {
	Logger
	Reader
}

// Nop discards audit records.
type Nop struct{}

// LogChange implements Logger.
func (Nop) LogChange(context.Context, string, id.ID, Action, map[string]any) error { return nil }

// History implements Reader.
func (Nop) History(context.Context, string, id.ID, int) ([]Record, error) { return nil, nil }
