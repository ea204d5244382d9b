// Package document_repo provides the PostgreSQL implementation of the stock
// journal repository.
package document_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/journal"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	journalsTable     = "stock_journals"
	journalLinesTable = "stock_journal_lines"
)

var (
	journalColumns   = postgres.ColumnsOf[journal.Document]()
	journalUpdatable = journalColumns.Except(postgres.ImmutableColumns...)
	lineColumns      = postgres.ColumnsOf[journal.Line]()
)

var _ journal.Repository = (*JournalRepo)(nil)

// JournalRepo implements journal.Repository.
type JournalRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewJournalRepo creates a new stock journal repository.
func NewJournalRepo(txm *postgres.TxManager) *JournalRepo {
	return &JournalRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create implements journal.Repository.
func (r *JournalRepo) Create(ctx context.Context, d *journal.Document) error {
	sql, args, err := r.builder.Insert(journalsTable).
		SetMap(journalColumns.Map(d)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewBusinessRule("DUPLICATE_JOURNAL", "stock journal already exists").
				WithDetail("voucher_number", d.VoucherNumber).
				WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", journalsTable, err)
	}
	return nil
}

// SaveLines implements journal.Repository.
func (r *JournalRepo) SaveLines(ctx context.Context, journalID id.ID, lines []journal.Line) error {
	querier := r.txm.GetQuerier(ctx)

	deleteSQL := "DELETE FROM " + journalLinesTable + " WHERE journal_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, journalID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.builder.Insert(journalLinesTable).Columns(lineColumns.Names()...)
	for i := range lines {
		q = q.Values(lineColumns.Values(&lines[i])...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

// GetByID implements journal.Repository.
func (r *JournalRepo) GetByID(ctx context.Context, organizationID string, journalID id.ID) (*journal.Document, error) {
	return r.get(ctx, organizationID, journalID, "")
}

// GetForUpdate implements journal.Repository.
func (r *JournalRepo) GetForUpdate(ctx context.Context, organizationID string, journalID id.ID) (*journal.Document, error) {
	if r.txm.InTx(ctx) == nil {
		return nil, fmt.Errorf("get journal for update requires transaction context")
	}
	return r.get(ctx, organizationID, journalID, "FOR UPDATE")
}

func (r *JournalRepo) get(ctx context.Context, organizationID string, journalID id.ID, suffix string) (*journal.Document, error) {
	q := r.builder.Select(journalColumns.Names()...).
		From(journalsTable).
		Where(squirrel.Eq{"id": journalID, "organization_id": organizationID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d journal.Document
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(journalsTable, journalID)
		}
		return nil, fmt.Errorf("get journal: %w", err)
	}
	return &d, nil
}

// GetLines implements journal.Repository.
func (r *JournalRepo) GetLines(ctx context.Context, journalID id.ID) ([]journal.Line, error) {
	sql, args, err := r.builder.Select(lineColumns.Names()...).
		From(journalLinesTable).
		Where(squirrel.Eq{"journal_id": journalID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []journal.Line
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return lines, nil
}

// Update implements journal.Repository.
func (r *JournalRepo) Update(ctx context.Context, d *journal.Document) error {
	sql, args, err := r.builder.Update(journalsTable).
		SetMap(journalUpdatable.Map(d)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": d.ID, "organization_id": d.OrganizationID, "version": d.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", journalsTable, err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, d.OrganizationID, d.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification(journalsTable, d.ID)
	}

	d.Version++
	return nil
}

// Delete implements journal.Repository. Lines are removed by ON DELETE CASCADE.
func (r *JournalRepo) Delete(ctx context.Context, organizationID string, journalID id.ID) error {
	sql, args, err := r.builder.Delete(journalsTable).
		Where(squirrel.Eq{"id": journalID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", journalsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(journalsTable, journalID)
	}
	return nil
}

// List implements journal.Repository.
func (r *JournalRepo) List(ctx context.Context, filter journal.ListFilter) (domain.ListResult[*journal.Document], error) {
	result := domain.ListResult[*journal.Document]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	where := journalFilter(filter)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(journalsTable).Where(where).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy, err := parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}

	q := r.builder.Select(journalColumns.Names()...).
		From(journalsTable).
		Where(where).
		OrderBy(orderBy)
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}
	return result, nil
}

func journalFilter(f journal.ListFilter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"organization_id": f.OrganizationID}}
	if f.TransactionType != nil {
		where = append(where, squirrel.Eq{"transaction_type": *f.TransactionType})
	}
	if f.VoucherNumber != "" {
		where = append(where, squirrel.Eq{"voucher_number": f.VoucherNumber})
	}
	if f.DateFrom != nil {
		where = append(where, squirrel.GtOrEq{"date": *f.DateFrom})
	}
	if f.DateTo != nil {
		where = append(where, squirrel.LtOrEq{"date": *f.DateTo})
	}
	return where
}

var sortableJournalColumns = map[string]struct{}{
	"number":         {},
	"voucher_number": {},
	"date":           {},
	"created_at":     {},
	"updated_at":     {},
}

// parseOrderBy accepts "field", "+field" or "-field".
func parseOrderBy(orderBy string) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		return "number DESC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := sortableJournalColumns[field]; !ok {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy)
	}

	return field + " " + direction, nil
}
