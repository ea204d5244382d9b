package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/balance"
	"stockledger/pkg/logger"
)

// PostInput describes a movement to record.
type PostInput struct {
	OrganizationID string
	ItemID         id.ID
	UnitID         *id.ID
	WarehouseID    *id.ID
	Quantity       types.Quantity
	Kind           MovementKind
	Direction      Direction
	Valuation      ValuationMethod

	// OccurredAt defaults to now
	OccurredAt time.Time

	ReferenceDocumentType string
	ReferenceDocument     string
	Remarks               string

	// JournalID marks postings produced by a stock journal.
	JournalID *id.ID
}

func (in PostInput) entry() *Entry {
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return &Entry{
		OrganizationID:        strings.TrimSpace(in.OrganizationID),
		ItemID:                in.ItemID,
		UnitID:                in.UnitID,
		WarehouseID:           in.WarehouseID,
		Quantity:              in.Quantity,
		Kind:                  in.Kind,
		Direction:             in.Direction,
		Valuation:             in.Valuation,
		OccurredAt:            occurred.UTC(),
		ReferenceDocumentType: in.ReferenceDocumentType,
		ReferenceDocument:     in.ReferenceDocument,
		Remarks:               in.Remarks,
		JournalID:             in.JournalID,
	}
}

// UpdateInput replaces the movement values of an existing entry.
// Organization and OccurredAt of the stored entry are kept.
type UpdateInput struct {
	PostInput

	EntryID id.ID

	// Version, when non-zero, must match the stored version.
	Version int
}

// Service is the only write path to ledger entries.
type Service struct {
	repo      Repository
	balances  *balance.Service
	numerator numerator.Generator
	txManager tx.Manager
	events    domain.EventPublisher
}

// NewService creates a new ledger service. A nil publisher drops events.
func NewService(
	repo Repository,
	balances *balance.Service,
	numerator numerator.Generator,
	txManager tx.Manager,
	events domain.EventPublisher,
) *Service {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		balances:  balances,
		numerator: numerator,
		txManager: txManager,
		events:    events,
	}
}

// Post validates and records one movement, applying its effect to the balance
// in the same atomic unit.
func (s *Service) Post(ctx context.Context, in PostInput) (*Entry, error) {
	e := in.entry()
	if err := e.Validate(ctx); err != nil {
		return nil, err
	}
	e.BaseEntity = entity.NewBaseEntity()
	e.CreatedBy = appctx.GetUserID(ctx)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.post(ctx, e); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, e); err != nil {
			return fmt.Errorf("create entry: %w", err)
		}
		return s.publish(ctx, domain.EventEntryPosted, e)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "ledger entry posted",
		"id", e.ID,
		"number", e.Number,
		"kind", e.Kind,
		"direction", e.Direction,
		"quantity", e.Quantity)

	return e, nil
}

// post applies the effect of e and numbers it. The caller inserts the row.
// The balance row is locked before the sequence row (see balance.Service).
func (s *Service) post(ctx context.Context, e *Entry) error {
	if _, err := s.balances.ApplyDelta(ctx, e.Key(), e.Effect()); err != nil {
		return err
	}

	number, err := s.numerator.Next(ctx, EntityType)
	if err != nil {
		return fmt.Errorf("generate entry number: %w", err)
	}
	e.Number = number
	return nil
}

// Update replaces the movement values of a committed entry. The previous
// effect is reversed on the previous key before the new effect is applied,
// so the result equals deleting the old entry and posting the new one.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*Entry, error) {
	candidate := in.entry()
	if err := candidate.Validate(ctx); err != nil {
		return nil, err
	}

	var next *Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		prev, err := s.repo.GetForUpdate(ctx, candidate.OrganizationID, in.EntryID)
		if err != nil {
			return err
		}
		if prev.JournalID != nil {
			return apperror.NewJournalOwned(prev.ID, *prev.JournalID)
		}
		if in.Version != 0 && in.Version != prev.Version {
			return apperror.NewConcurrentModification("ledger_entry", prev.ID)
		}

		updated := *prev
		updated.ItemID = candidate.ItemID
		updated.UnitID = candidate.UnitID
		updated.WarehouseID = candidate.WarehouseID
		updated.Quantity = candidate.Quantity
		updated.Kind = candidate.Kind
		updated.Direction = candidate.Direction
		updated.Valuation = candidate.Valuation
		updated.ReferenceDocumentType = candidate.ReferenceDocumentType
		updated.ReferenceDocument = candidate.ReferenceDocument
		updated.Remarks = candidate.Remarks
		updated.UpdatedAt = time.Now().UTC()

		if err := s.balances.Lock(ctx, prev.Key(), updated.Key()); err != nil {
			return err
		}
		if _, err := s.balances.ApplyDelta(ctx, prev.Key(), prev.Effect().Neg()); err != nil {
			return fmt.Errorf("reverse entry %s: %w", prev.ID, err)
		}
		if _, err := s.balances.ApplyDelta(ctx, updated.Key(), updated.Effect()); err != nil {
			return err
		}

		if err := s.repo.Update(ctx, &updated); err != nil {
			return err
		}
		next = &updated
		return s.publish(ctx, domain.EventEntryUpdated, next)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "ledger entry updated",
		"id", next.ID,
		"number", next.Number,
		"version", next.Version,
		"quantity", next.Quantity)

	return next, nil
}

// Delete reverses the effect of a committed entry and removes it.
func (s *Service) Delete(ctx context.Context, organizationID string, entryID id.ID) error {
	if strings.TrimSpace(organizationID) == "" {
		return apperror.NewFieldValidation("organization_id", "is required")
	}

	var removed *Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, organizationID, entryID)
		if err != nil {
			return err
		}
		if e.JournalID != nil {
			return apperror.NewJournalOwned(e.ID, *e.JournalID)
		}

		if _, err := s.balances.ApplyDelta(ctx, e.Key(), e.Effect().Neg()); err != nil {
			return fmt.Errorf("reverse entry %s: %w", e.ID, err)
		}
		if err := s.repo.Delete(ctx, organizationID, entryID); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		removed = e
		return s.publish(ctx, domain.EventEntryDeleted, e)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "ledger entry deleted",
		"id", removed.ID,
		"number", removed.Number)

	return nil
}

// BulkPost records many movements of one organization as a single atomic
// unit: either every entry commits or none does.
func (s *Service) BulkPost(ctx context.Context, organizationID string, inputs []PostInput) ([]*Entry, error) {
	if len(inputs) == 0 {
		return nil, apperror.NewValidation("transactions data is required")
	}
	if strings.TrimSpace(organizationID) == "" {
		return nil, apperror.NewFieldValidation("organization_id", "is required")
	}

	var verr *apperror.AppError
	entries := make([]*Entry, len(inputs))
	keys := make([]balance.Key, 0, len(inputs))
	userID := appctx.GetUserID(ctx)
	for i, in := range inputs {
		in.OrganizationID = organizationID
		e := in.entry()
		if err := e.Validate(ctx); err != nil {
			if verr == nil {
				verr = apperror.NewValidation("invalid transactions")
			}
			mergeFieldErrors(verr, fmt.Sprintf("transactions[%d]", i), err)
			continue
		}
		e.BaseEntity = entity.NewBaseEntity()
		e.CreatedBy = userID
		entries[i] = e
		keys = append(keys, e.Key())
	}
	if verr != nil {
		return nil, verr
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.balances.Lock(ctx, keys...); err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.post(ctx, e); err != nil {
				return err
			}
		}
		if err := s.repo.CreateBatch(ctx, entries); err != nil {
			return fmt.Errorf("create entries: %w", err)
		}
		for _, e := range entries {
			if err := s.publish(ctx, domain.EventEntryPosted, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "ledger entries bulk posted",
		"organization_id", organizationID,
		"count", len(entries),
		"first_number", entries[0].Number,
		"last_number", entries[len(entries)-1].Number)

	return entries, nil
}

// ReverseJournal reverses and removes every entry produced by a journal.
// Only the journal processor calls it, inside its own atomic unit. Keys in
// reposting are the balances the caller posts to afterwards; they are locked
// in the same ordered pass as the journal's own keys.
func (s *Service) ReverseJournal(ctx context.Context, organizationID string, journalID id.ID, reposting ...balance.Key) ([]*Entry, error) {
	var entries []*Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		entries, err = s.repo.ListByJournal(ctx, organizationID, journalID)
		if err != nil {
			return fmt.Errorf("list journal entries: %w", err)
		}
		keys := append([]balance.Key(nil), reposting...)
		for _, e := range entries {
			keys = append(keys, e.Key())
		}
		if len(keys) > 0 {
			if err := s.balances.Lock(ctx, keys...); err != nil {
				return err
			}
		}
		if len(entries) == 0 {
			return nil
		}

		// Reverse newest first so balances retrace the posting order.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if _, err := s.balances.ApplyDelta(ctx, e.Key(), e.Effect().Neg()); err != nil {
				return fmt.Errorf("reverse entry %s: %w", e.ID, err)
			}
		}

		if err := s.repo.DeleteByJournal(ctx, organizationID, journalID); err != nil {
			return fmt.Errorf("delete journal entries: %w", err)
		}
		for _, e := range entries {
			if err := s.publish(ctx, domain.EventEntryDeleted, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns one entry of the organization.
func (s *Service) Get(ctx context.Context, organizationID string, entryID id.ID) (*Entry, error) {
	return s.repo.GetByID(ctx, organizationID, entryID)
}

// List returns entries of the organization matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Entry], error) {
	if strings.TrimSpace(filter.OrganizationID) == "" {
		return domain.ListResult[*Entry]{}, apperror.NewFieldValidation("organization_id", "is required")
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return domain.ListResult[*Entry]{}, apperror.NewFieldValidation("movement_kind", "is unknown")
	}
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.List(ctx, filter)
}

func (s *Service) publish(ctx context.Context, eventType string, e *Entry) error {
	err := s.events.Publish(ctx, domain.Event{
		AggregateType: "ledger_entry",
		AggregateID:   e.ID,
		EventType:     eventType,
		Payload:       e,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// mergeFieldErrors copies the field details of err into dst under prefix.
func mergeFieldErrors(dst *apperror.AppError, prefix string, err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		dst.WithField(prefix, err.Error())
		return
	}
	fields, _ := appErr.Details["fields"].(map[string]string)
	if len(fields) == 0 {
		dst.WithField(prefix, appErr.Message)
		return
	}
	for name, reason := range fields {
		dst.WithField(prefix+"."+name, reason)
	}
}
