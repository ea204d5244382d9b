package memory

import (
	"context"
	"sort"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
)

var _ ledger.Repository = (*LedgerRepository)(nil)

const entriesTable = "stock_ledger_entries"

// LedgerRepository implements ledger.Repository.
type LedgerRepository struct {
	store *Store
}

// Create implements ledger.Repository.
func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	return r.store.write(ctx, "ledger.create", func(st *state) error {
		if _, ok := st.entries[e.ID]; ok {
			return apperror.NewBusinessRule("DUPLICATE_ENTRY", "ledger entry already exists").
				WithDetail("id", e.ID)
		}
		st.entries[e.ID] = *e
		return nil
	})
}

// CreateBatch implements ledger.Repository.
func (r *LedgerRepository) CreateBatch(ctx context.Context, entries []*ledger.Entry) error {
	if !r.store.inUnit(ctx) {
		return errNoUnit
	}
	for _, e := range entries {
		if err := r.Create(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// GetByID implements ledger.Repository.
func (r *LedgerRepository) GetByID(ctx context.Context, organizationID string, entryID id.ID) (*ledger.Entry, error) {
	var out ledger.Entry
	err := r.store.read(ctx, func(st *state) error {
		e, ok := st.entries[entryID]
		if !ok || e.OrganizationID != organizationID {
			return apperror.NewNotFound(entriesTable, entryID)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate implements ledger.Repository.
func (r *LedgerRepository) GetForUpdate(ctx context.Context, organizationID string, entryID id.ID) (*ledger.Entry, error) {
	if !r.store.inUnit(ctx) {
		return nil, errNoUnit
	}
	return r.GetByID(ctx, organizationID, entryID)
}

// Update implements ledger.Repository.
func (r *LedgerRepository) Update(ctx context.Context, e *ledger.Entry) error {
	return r.store.write(ctx, "ledger.update", func(st *state) error {
		stored, ok := st.entries[e.ID]
		if !ok || stored.OrganizationID != e.OrganizationID {
			return apperror.NewNotFound(entriesTable, e.ID)
		}
		if stored.Version != e.Version {
			return apperror.NewConcurrentModification(entriesTable, e.ID)
		}
		e.Version++
		st.entries[e.ID] = *e
		return nil
	})
}

// Delete implements ledger.Repository.
func (r *LedgerRepository) Delete(ctx context.Context, organizationID string, entryID id.ID) error {
	return r.store.write(ctx, "ledger.delete", func(st *state) error {
		e, ok := st.entries[entryID]
		if !ok || e.OrganizationID != organizationID {
			return apperror.NewNotFound(entriesTable, entryID)
		}
		delete(st.entries, entryID)
		return nil
	})
}

// ListByJournal implements ledger.Repository.
func (r *LedgerRepository) ListByJournal(ctx context.Context, organizationID string, journalID id.ID) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	_ = r.store.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.OrganizationID == organizationID && e.JournalID != nil && *e.JournalID == journalID {
				out = append(out, &e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// DeleteByJournal implements ledger.Repository.
func (r *LedgerRepository) DeleteByJournal(ctx context.Context, organizationID string, journalID id.ID) error {
	return r.store.write(ctx, "ledger.delete", func(st *state) error {
		for entryID, e := range st.entries {
			if e.OrganizationID == organizationID && e.JournalID != nil && *e.JournalID == journalID {
				delete(st.entries, entryID)
			}
		}
		return nil
	})
}

// List implements ledger.Repository. Newest entries come first unless
// OrderBy is "number".
func (r *LedgerRepository) List(ctx context.Context, filter ledger.ListFilter) (domain.ListResult[*ledger.Entry], error) {
	var items []*ledger.Entry
	_ = r.store.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if !matchEntry(&e, filter) {
				continue
			}
			items = append(items, &e)
		}
		return nil
	})

	ascending := strings.TrimSpace(filter.OrderBy) == "number"
	sort.Slice(items, func(i, j int) bool {
		if ascending {
			return items[i].Number < items[j].Number
		}
		return items[i].Number > items[j].Number
	})
	return paginate(items, filter.ListFilter), nil
}

func matchEntry(e *ledger.Entry, f ledger.ListFilter) bool {
	switch {
	case e.OrganizationID != f.OrganizationID:
		return false
	case f.ItemID != nil && e.ItemID != *f.ItemID:
		return false
	case f.WarehouseID != nil && !id.Equal(e.WarehouseID, f.WarehouseID):
		return false
	case f.JournalID != nil && !id.Equal(e.JournalID, f.JournalID):
		return false
	case f.Kind != "" && e.Kind != f.Kind:
		return false
	case f.ReferenceDocument != "" && e.ReferenceDocument != f.ReferenceDocument:
		return false
	}
	return true
}
