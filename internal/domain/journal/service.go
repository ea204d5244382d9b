package journal

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
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// SubmitResult is the outcome of a committed journal write.
type SubmitResult struct {
	Document *Document `json:"document"`
	EntryIDs []id.ID   `json:"entryIds"`
}

// Service processes stock journals. Every write runs as one atomic unit
// covering the document, its lines, all derived ledger entries and their
// balance deltas.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	balances  *balance.Service
	numerator numerator.Generator
	txManager tx.Manager
	audit     audit.Trail
	events    domain.EventPublisher
}

// NewService creates a new journal service. Nil audit trail and publisher
// are replaced with no-op implementations.
func NewService(
	repo Repository,
	ledgerService *ledger.Service,
	balances *balance.Service,
	numerator numerator.Generator,
	txManager tx.Manager,
	auditTrail audit.Trail,
	events domain.EventPublisher,
) *Service {
	if auditTrail == nil {
		auditTrail = audit.Nop{}
	}
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		ledger:    ledgerService,
		balances:  balances,
		numerator: numerator,
		txManager: txManager,
		audit:     auditTrail,
		events:    events,
	}
}

// Submit validates the document and every line up front, then persists it
// and fans out its postings. Any failure leaves no trace of the journal.
func (s *Service) Submit(ctx context.Context, d *Document) (*SubmitResult, error) {
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}
	rule, err := ruleFor(d.TransactionType)
	if err != nil {
		return nil, err
	}

	d.BaseEntity = entity.NewBaseEntity()
	d.CreatedBy = appctx.GetUserID(ctx)
	d.VoucherNumber = strings.TrimSpace(d.VoucherNumber)
	if d.Date.IsZero() {
		d.Date = time.Now().UTC()
	}

	var entryIDs []id.ID
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.balances.Lock(ctx, postingKeys(d, rule)...); err != nil {
			return err
		}

		number, err := s.numerator.Next(ctx, EntityType)
		if err != nil {
			return fmt.Errorf("generate journal number: %w", err)
		}
		d.Number = number
		if d.VoucherNumber == "" {
			d.VoucherNumber = numerator.Format(numerator.DefaultConfig(VoucherPrefix), d.Date, number)
		}

		if err := s.repo.Create(ctx, d); err != nil {
			return fmt.Errorf("create journal: %w", err)
		}
		if err := s.saveLines(ctx, d); err != nil {
			return err
		}

		entryIDs, err = s.fanOut(ctx, d, rule)
		if err != nil {
			return err
		}

		if err := s.audit.LogChange(ctx, EntityType, d.ID, audit.ActionCreate, map[string]any{"new": d}); err != nil {
			return fmt.Errorf("audit journal: %w", err)
		}
		return s.publish(ctx, domain.EventJournalSubmitted, d, entryIDs)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock journal submitted",
		"id", d.ID,
		"number", d.Number,
		"voucher", d.VoucherNumber,
		"type", d.TransactionType.String(),
		"lines", len(d.Lines),
		"entries", len(entryIDs))

	return &SubmitResult{Document: d, EntryIDs: entryIDs}, nil
}

// Update reverses every posting of the stored journal, replaces its header
// and lines with d and fans out again.
func (s *Service) Update(ctx context.Context, d *Document) (*SubmitResult, error) {
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}
	rule, err := ruleFor(d.TransactionType)
	if err != nil {
		return nil, err
	}
	d.VoucherNumber = strings.TrimSpace(d.VoucherNumber)

	var entryIDs []id.ID
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		prev, err := s.repo.GetForUpdate(ctx, d.OrganizationID, d.ID)
		if err != nil {
			return err
		}
		if d.Version != 0 && d.Version != prev.Version {
			return apperror.NewConcurrentModification("stock_journal", prev.ID)
		}
		prev.Lines, err = s.repo.GetLines(ctx, prev.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		if _, err := s.ledger.ReverseJournal(ctx, prev.OrganizationID, prev.ID, postingKeys(d, rule)...); err != nil {
			return fmt.Errorf("reverse journal %s: %w", prev.ID, err)
		}

		d.Number = prev.Number
		d.Version = prev.Version
		d.CreatedAt = prev.CreatedAt
		d.CreatedBy = prev.CreatedBy
		d.UpdatedAt = time.Now().UTC()
		if d.VoucherNumber == "" {
			d.VoucherNumber = prev.VoucherNumber
		}
		if d.Date.IsZero() {
			d.Date = prev.Date
		}
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}

		for i := range d.Lines {
			d.Lines[i].ID = id.Nil
		}
		if err := s.saveLines(ctx, d); err != nil {
			return err
		}

		entryIDs, err = s.fanOut(ctx, d, rule)
		if err != nil {
			return err
		}

		if err := s.audit.LogChange(ctx, EntityType, d.ID, audit.ActionUpdate, map[string]any{"old": prev, "new": d}); err != nil {
			return fmt.Errorf("audit journal: %w", err)
		}
		return s.publish(ctx, domain.EventJournalUpdated, d, entryIDs)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock journal updated",
		"id", d.ID,
		"number", d.Number,
		"version", d.Version,
		"entries", len(entryIDs))

	return &SubmitResult{Document: d, EntryIDs: entryIDs}, nil
}

// Delete reverses every posting of a journal and removes it with its lines.
func (s *Service) Delete(ctx context.Context, organizationID string, journalID id.ID) error {
	if strings.TrimSpace(organizationID) == "" {
		return apperror.NewFieldValidation("organization_id", "is required")
	}

	var removed *Document
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetForUpdate(ctx, organizationID, journalID)
		if err != nil {
			return err
		}

		reversed, err := s.ledger.ReverseJournal(ctx, organizationID, journalID)
		if err != nil {
			return fmt.Errorf("reverse journal %s: %w", journalID, err)
		}
		if err := s.repo.Delete(ctx, organizationID, journalID); err != nil {
			return fmt.Errorf("delete journal: %w", err)
		}

		if err := s.audit.LogChange(ctx, EntityType, d.ID, audit.ActionDelete, map[string]any{"old": d}); err != nil {
			return fmt.Errorf("audit journal: %w", err)
		}
		removed = d
		return s.publish(ctx, domain.EventJournalDeleted, d, entryIDsOf(reversed))
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock journal deleted",
		"id", removed.ID,
		"number", removed.Number)

	return nil
}

// Get returns a journal with its lines.
func (s *Service) Get(ctx context.Context, organizationID string, journalID id.ID) (*Document, error) {
	d, err := s.repo.GetByID(ctx, organizationID, journalID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, journalID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	d.Lines = lines

	return d, nil
}

// History returns the audit trail of a journal, newest first. The journal
// must still exist in the organization.
func (s *Service) History(ctx context.Context, organizationID string, journalID id.ID, limit int) ([]audit.Record, error) {
	if _, err := s.repo.GetByID(ctx, organizationID, journalID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > domain.MaxListLimit {
		limit = domain.MaxListLimit
	}
	return s.audit.History(ctx, EntityType, journalID, limit)
}

// List returns journal headers of an organization.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Document], error) {
	if strings.TrimSpace(filter.OrganizationID) == "" {
		return domain.ListResult[*Document]{}, apperror.NewFieldValidation("organization_id", "is required")
	}
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.List(ctx, filter)
}

// saveLines numbers the lines in supplied order and persists them.
func (s *Service) saveLines(ctx context.Context, d *Document) error {
	d.prepare()
	for i := range d.Lines {
		number, err := s.numerator.Next(ctx, LineEntityType)
		if err != nil {
			return fmt.Errorf("generate line number: %w", err)
		}
		d.Lines[i].Number = number
	}
	if err := s.repo.SaveLines(ctx, d.ID, d.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}
	return nil
}

// postingKeys returns the balance keys the lines of d post to.
func postingKeys(d *Document, rule postingRule) []balance.Key {
	var keys []balance.Key
	for i := range d.Lines {
		for _, p := range rule.postings(d, &d.Lines[i]) {
			keys = append(keys, balance.Key{OrganizationID: p.OrganizationID, ItemID: p.ItemID, WarehouseID: p.WarehouseID})
		}
	}
	return keys
}

// fanOut posts the movements of every line in supplied order. The caller has
// already locked every key from postingKeys.
func (s *Service) fanOut(ctx context.Context, d *Document, rule postingRule) ([]id.ID, error) {
	var postings []ledger.PostInput
	for i := range d.Lines {
		postings = append(postings, rule.postings(d, &d.Lines[i])...)
	}

	entryIDs := make([]id.ID, 0, len(postings))
	for i, p := range postings {
		e, err := s.ledger.Post(ctx, p)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("posting", i)
			}
			return nil, err
		}
		entryIDs = append(entryIDs, e.ID)
	}
	return entryIDs, nil
}

func (s *Service) publish(ctx context.Context, eventType string, d *Document, entryIDs []id.ID) error {
	err := s.events.Publish(ctx, domain.Event{
		AggregateType: "stock_journal",
		AggregateID:   d.ID,
		EventType:     eventType,
		Payload: map[string]any{
			"id":              d.ID,
			"number":          d.Number,
			"voucherNumber":   d.VoucherNumber,
			"transactionType": int(d.TransactionType),
			"entryIds":        entryIDs,
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func entryIDsOf(entries []*ledger.Entry) []id.ID {
	ids := make([]id.ID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
