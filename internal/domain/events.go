package domain

import (
	"context"

	"stockledger/internal/core/id"
)

// Event is a domain event written in the same atomic unit as the change it
// describes and relayed later by the worker.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Event types
const (
	EventEntryPosted      = "ledger.entry_posted"
	EventEntryUpdated     = "ledger.entry_updated"
	EventEntryDeleted     = "ledger.entry_deleted"
	EventJournalSubmitted = "journal.submitted"
	EventJournalUpdated   = "journal.updated"
	EventJournalDeleted   = "journal.deleted"
)

// EventPublisher writes events inside the caller's atomic unit.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
