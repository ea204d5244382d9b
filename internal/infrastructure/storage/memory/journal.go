package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/journal"
)

var _ journal.Repository = (*JournalRepository)(nil)

const journalsTable = "stock_journals"

// JournalRepository implements journal.Repository.
type JournalRepository struct {
	store *Store
}

// Create implements journal.Repository.
func (r *JournalRepository) Create(ctx context.Context, d *journal.Document) error {
	return r.store.write(ctx, "journal.create", func(st *state) error {
		if _, ok := st.journals[d.ID]; ok {
			return apperror.NewBusinessRule("DUPLICATE_JOURNAL", "stock journal already exists").
				WithDetail("id", d.ID)
		}
		header := *d
		header.Lines = nil
		st.journals[d.ID] = header
		return nil
	})
}

// SaveLines implements journal.Repository.
func (r *JournalRepository) SaveLines(ctx context.Context, journalID id.ID, lines []journal.Line) error {
	return r.store.write(ctx, "journal.save_lines", func(st *state) error {
		if _, ok := st.journals[journalID]; !ok {
			return apperror.NewNotFound(journalsTable, journalID)
		}
		st.lines[journalID] = append([]journal.Line(nil), lines...)
		return nil
	})
}

// GetByID implements journal.Repository.
func (r *JournalRepository) GetByID(ctx context.Context, organizationID string, journalID id.ID) (*journal.Document, error) {
	var out journal.Document
	err := r.store.read(ctx, func(st *state) error {
		d, ok := st.journals[journalID]
		if !ok || d.OrganizationID != organizationID {
			return apperror.NewNotFound(journalsTable, journalID)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate implements journal.Repository.
func (r *JournalRepository) GetForUpdate(ctx context.Context, organizationID string, journalID id.ID) (*journal.Document, error) {
	if !r.store.inUnit(ctx) {
		return nil, errNoUnit
	}
	return r.GetByID(ctx, organizationID, journalID)
}

// GetLines implements journal.Repository.
func (r *JournalRepository) GetLines(ctx context.Context, journalID id.ID) ([]journal.Line, error) {
	var out []journal.Line
	_ = r.store.read(ctx, func(st *state) error {
		out = append([]journal.Line(nil), st.lines[journalID]...)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

// Update implements journal.Repository.
func (r *JournalRepository) Update(ctx context.Context, d *journal.Document) error {
	return r.store.write(ctx, "journal.update", func(st *state) error {
		stored, ok := st.journals[d.ID]
		if !ok || stored.OrganizationID != d.OrganizationID {
			return apperror.NewNotFound(journalsTable, d.ID)
		}
		if stored.Version != d.Version {
			return apperror.NewConcurrentModification(journalsTable, d.ID)
		}
		d.Version++
		header := *d
		header.Lines = nil
		st.journals[d.ID] = header
		return nil
	})
}

// Delete implements journal.Repository. Lines go with the header.
func (r *JournalRepository) Delete(ctx context.Context, organizationID string, journalID id.ID) error {
	return r.store.write(ctx, "journal.delete", func(st *state) error {
		d, ok := st.journals[journalID]
		if !ok || d.OrganizationID != organizationID {
			return apperror.NewNotFound(journalsTable, journalID)
		}
		delete(st.journals, journalID)
		delete(st.lines, journalID)
		return nil
	})
}

// List implements journal.Repository. Newest journals come first.
func (r *JournalRepository) List(ctx context.Context, filter journal.ListFilter) (domain.ListResult[*journal.Document], error) {
	var items []*journal.Document
	_ = r.store.read(ctx, func(st *state) error {
		for _, d := range st.journals {
			if !matchJournal(&d, filter) {
				continue
			}
			items = append(items, &d)
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Number > items[j].Number })
	return paginate(items, filter.ListFilter), nil
}

func matchJournal(d *journal.Document, f journal.ListFilter) bool {
	switch {
	case d.OrganizationID != f.OrganizationID:
		return false
	case f.TransactionType != nil && d.TransactionType != *f.TransactionType:
		return false
	case f.VoucherNumber != "" && d.VoucherNumber != f.VoucherNumber:
		return false
	case f.DateFrom != nil && d.Date.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && d.Date.After(*f.DateTo):
		return false
	}
	return true
}
