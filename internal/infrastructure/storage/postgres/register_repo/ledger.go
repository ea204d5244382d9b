package register_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const entriesTable = "stock_ledger_entries"

var (
	entryColumns   = postgres.ColumnsOf[ledger.Entry]()
	entryUpdatable = entryColumns.Except(postgres.ImmutableColumns...)
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger entry repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create implements ledger.Repository.
func (r *LedgerRepo) Create(ctx context.Context, e *ledger.Entry) error {
	sql, args, err := r.builder.Insert(entriesTable).
		SetMap(entryColumns.Map(e)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewBusinessRule("DUPLICATE_ENTRY", "ledger entry already exists").
				WithDetail("id", e.ID).
				WithCause(err)
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// CreateBatch implements ledger.Repository using COPY.
func (r *LedgerRepo) CreateBatch(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if r.txm.InTx(ctx) == nil {
		return fmt.Errorf("create entries requires transaction context")
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, entryColumns.Values(e))
	}

	inserter := postgres.NewBatchInserter(r.txm)
	if _, err := inserter.CopyFromSlice(ctx, entriesTable, entryColumns.Names(), rows); err != nil {
		return fmt.Errorf("copy entries: %w", err)
	}
	return nil
}

// GetByID implements ledger.Repository.
func (r *LedgerRepo) GetByID(ctx context.Context, organizationID string, entryID id.ID) (*ledger.Entry, error) {
	return r.get(ctx, organizationID, entryID, "")
}

// GetForUpdate implements ledger.Repository.
func (r *LedgerRepo) GetForUpdate(ctx context.Context, organizationID string, entryID id.ID) (*ledger.Entry, error) {
	if r.txm.InTx(ctx) == nil {
		return nil, fmt.Errorf("get entry for update requires transaction context")
	}
	return r.get(ctx, organizationID, entryID, "FOR UPDATE")
}

func (r *LedgerRepo) get(ctx context.Context, organizationID string, entryID id.ID, suffix string) (*ledger.Entry, error) {
	q := r.builder.Select(entryColumns.Names()...).
		From(entriesTable).
		Where(squirrel.Eq{"id": entryID, "organization_id": organizationID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var e ledger.Entry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(entriesTable, entryID)
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &e, nil
}

// Update implements ledger.Repository.
func (r *LedgerRepo) Update(ctx context.Context, e *ledger.Entry) error {
	q := r.builder.Update(entriesTable).
		SetMap(entryUpdatable.Map(e)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": e.ID, "organization_id": e.OrganizationID, "version": e.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, e.OrganizationID, e.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification(entriesTable, e.ID)
	}

	e.Version++
	return nil
}

// Delete implements ledger.Repository.
func (r *LedgerRepo) Delete(ctx context.Context, organizationID string, entryID id.ID) error {
	sql, args, err := r.builder.Delete(entriesTable).
		Where(squirrel.Eq{"id": entryID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(entriesTable, entryID)
	}
	return nil
}

// ListByJournal implements ledger.Repository.
func (r *LedgerRepo) ListByJournal(ctx context.Context, organizationID string, journalID id.ID) ([]*ledger.Entry, error) {
	sql, args, err := r.builder.Select(entryColumns.Names()...).
		From(entriesTable).
		Where(squirrel.Eq{"organization_id": organizationID, "journal_id": journalID}).
		OrderBy("number").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []*ledger.Entry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select journal entries: %w", err)
	}
	return entries, nil
}

// DeleteByJournal implements ledger.Repository.
func (r *LedgerRepo) DeleteByJournal(ctx context.Context, organizationID string, journalID id.ID) error {
	sql, args, err := r.builder.Delete(entriesTable).
		Where(squirrel.Eq{"organization_id": organizationID, "journal_id": journalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete journal entries: %w", err)
	}
	return nil
}

// List implements ledger.Repository.
func (r *LedgerRepo) List(ctx context.Context, filter ledger.ListFilter) (domain.ListResult[*ledger.Entry], error) {
	var result domain.ListResult[*ledger.Entry]
	where := entryFilter(filter)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(entriesTable).Where(where).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count entries: %w", err)
	}

	order := "number DESC"
	if strings.TrimSpace(filter.OrderBy) == "number" {
		order = "number"
	}

	sql, args, err := r.builder.Select(entryColumns.Names()...).
		From(entriesTable).
		Where(where).
		OrderBy(order).
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("select entries: %w", err)
	}
	result.Limit = filter.Limit
	result.Offset = filter.Offset
	return result, nil
}

func entryFilter(f ledger.ListFilter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"organization_id": f.OrganizationID}}
	if f.ItemID != nil {
		where = append(where, squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.WarehouseID != nil {
		where = append(where, squirrel.Eq{"warehouse_id": *f.WarehouseID})
	}
	if f.JournalID != nil {
		where = append(where, squirrel.Eq{"journal_id": *f.JournalID})
	}
	if f.Kind != "" {
		where = append(where, squirrel.Eq{"movement_kind": f.Kind})
	}
	if f.ReferenceDocument != "" {
		where = append(where, squirrel.Eq{"reference_document": f.ReferenceDocument})
	}
	return where
}
