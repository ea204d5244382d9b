// Package register_repo provides PostgreSQL implementations of the stock
// balance and ledger entry repositories.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/balance"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	stockBalancesTable = "stock_balances"
	openingStockTable  = "opening_stock"
)

var (
	balanceColumns = postgres.ColumnsOf[balance.Balance]()
	openingColumns = postgres.ColumnsOf[balance.OpeningStock]()

	// item, warehouse and organization of a record never change
	openingUpdatable = openingColumns.Except(append([]string{"item_id", "warehouse_id"}, postgres.ImmutableColumns...)...)
)

var _ balance.Repository = (*BalanceRepo)(nil)

// BalanceRepo implements balance.Repository.
type BalanceRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewBalanceRepo creates a new balance repository.
func NewBalanceRepo(txm *postgres.TxManager) *BalanceRepo {
	return &BalanceRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LockOrCreate implements balance.Repository.
// The insert is a no-op when the row exists; the select then takes the row
// lock, so concurrent creators of the same key serialize on it.
func (r *BalanceRepo) LockOrCreate(ctx context.Context, key balance.Key) (*balance.Balance, error) {
	tx := r.txm.InTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("lock balance requires transaction context")
	}

	row := balance.NewBalance(key)
	insert, args, err := r.builder.Insert(stockBalancesTable).
		SetMap(balanceColumns.Map(row)).
		Suffix("ON CONFLICT (organization_id, item_id, warehouse_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.Exec(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("insert balance: %w", err)
	}

	var b balance.Balance
	err = pgxscan.Get(ctx, tx, &b, `
		SELECT id, version, created_at, updated_at, created_by,
		       organization_id, item_id, warehouse_id,
		       opening_balance, closing_balance, received, is_active
		FROM stock_balances
		WHERE organization_id = $1 AND item_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3
		FOR UPDATE
	`, key.OrganizationID, key.ItemID, key.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("select balance for update: %w", err)
	}
	return &b, nil
}

// Save implements balance.Repository.
func (r *BalanceRepo) Save(ctx context.Context, b *balance.Balance) error {
	q := r.builder.Update(stockBalancesTable).
		Set("opening_balance", b.OpeningBalance).
		Set("closing_balance", b.ClosingBalance).
		Set("received", b.Received).
		Set("is_active", b.IsActive).
		Set("version", b.Version).
		Set("updated_at", b.UpdatedAt).
		Where(squirrel.Eq{"id": b.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(stockBalancesTable, b.Key().String())
	}
	return nil
}

// Get implements balance.Repository.
func (r *BalanceRepo) Get(ctx context.Context, key balance.Key) (*balance.Balance, error) {
	q := r.builder.Select(balanceColumns.Names()...).
		From(stockBalancesTable).
		Where(squirrel.Eq{
			"organization_id": key.OrganizationID,
			"item_id":         key.ItemID,
		}).
		Where(warehouseCond(key.WarehouseID)).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b balance.Balance
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(stockBalancesTable, key.String())
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

// List implements balance.Repository.
func (r *BalanceRepo) List(ctx context.Context, filter balance.ListFilter) (domain.ListResult[balance.Balance], error) {
	var result domain.ListResult[balance.Balance]

	where := squirrel.And{squirrel.Eq{"organization_id": filter.OrganizationID}}
	if filter.ItemID != nil {
		where = append(where, squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.WarehouseID != nil {
		where = append(where, squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.ExcludeZero {
		where = append(where, squirrel.NotEq{"closing_balance": int64(0)})
	}

	total, err := r.count(ctx, where)
	if err != nil {
		return result, err
	}

	q := r.builder.Select(balanceColumns.Names()...).
		From(stockBalancesTable).
		Where(where).
		OrderBy("item_id", "warehouse_id NULLS FIRST").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	var items []balance.Balance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return result, fmt.Errorf("select balances: %w", err)
	}

	result.Items = items
	result.TotalCount = total
	result.Limit = filter.Limit
	result.Offset = filter.Offset
	return result, nil
}

func (r *BalanceRepo) count(ctx context.Context, where squirrel.Sqlizer) (int64, error) {
	sql, args, err := r.builder.Select("COUNT(*)").From(stockBalancesTable).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count balances: %w", err)
	}
	return total, nil
}

// SummaryByItem implements balance.Repository.
func (r *BalanceRepo) SummaryByItem(ctx context.Context, organizationID string) ([]balance.ItemSummary, error) {
	q := r.builder.Select(
		"item_id",
		"SUM(opening_balance)::bigint AS opening_balance",
		"SUM(closing_balance)::bigint AS closing_balance",
		"SUM(received)::bigint AS received",
		"COUNT(*) AS warehouses",
	).From(stockBalancesTable).
		Where(squirrel.Eq{"organization_id": organizationID}).
		GroupBy("item_id").
		OrderBy("item_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []balance.ItemSummary
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select summary: %w", err)
	}
	return out, nil
}

// CreateOpeningStock implements balance.Repository.
func (r *BalanceRepo) CreateOpeningStock(ctx context.Context, o *balance.OpeningStock) error {
	sql, args, err := r.builder.Insert(openingStockTable).
		SetMap(openingColumns.Map(o)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert opening stock: %w", err)
	}
	return nil
}

// GetOpeningStock implements balance.Repository.
func (r *BalanceRepo) GetOpeningStock(ctx context.Context, organizationID string, openingID id.ID) (*balance.OpeningStock, error) {
	return r.getOpening(ctx, organizationID, openingID, "")
}

// GetOpeningStockForUpdate implements balance.Repository.
func (r *BalanceRepo) GetOpeningStockForUpdate(ctx context.Context, organizationID string, openingID id.ID) (*balance.OpeningStock, error) {
	if r.txm.InTx(ctx) == nil {
		return nil, fmt.Errorf("get opening stock for update requires transaction context")
	}
	return r.getOpening(ctx, organizationID, openingID, "FOR UPDATE")
}

func (r *BalanceRepo) getOpening(ctx context.Context, organizationID string, openingID id.ID, suffix string) (*balance.OpeningStock, error) {
	q := r.builder.Select(openingColumns.Names()...).
		From(openingStockTable).
		Where(squirrel.Eq{"id": openingID, "organization_id": organizationID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o balance.OpeningStock
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(openingStockTable, openingID)
		}
		return nil, fmt.Errorf("get opening stock: %w", err)
	}
	return &o, nil
}

// UpdateOpeningStock implements balance.Repository.
func (r *BalanceRepo) UpdateOpeningStock(ctx context.Context, o *balance.OpeningStock) error {
	sql, args, err := r.builder.Update(openingStockTable).
		SetMap(openingUpdatable.Map(o)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": o.ID, "organization_id": o.OrganizationID, "version": o.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", openingStockTable, err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetOpeningStock(ctx, o.OrganizationID, o.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification(openingStockTable, o.ID)
	}

	o.Version++
	return nil
}

// DeleteOpeningStock implements balance.Repository.
func (r *BalanceRepo) DeleteOpeningStock(ctx context.Context, organizationID string, openingID id.ID) error {
	sql, args, err := r.builder.Delete(openingStockTable).
		Where(squirrel.Eq{"id": openingID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", openingStockTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(openingStockTable, openingID)
	}
	return nil
}

// ListOpeningStock implements balance.Repository.
func (r *BalanceRepo) ListOpeningStock(ctx context.Context, filter balance.OpeningStockFilter) (domain.ListResult[balance.OpeningStock], error) {
	var result domain.ListResult[balance.OpeningStock]

	where := openingFilter(filter)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(openingStockTable).Where(where).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return result, fmt.Errorf("count opening stock: %w", err)
	}

	sql, args, err := r.builder.Select(openingColumns.Names()...).
		From(openingStockTable).
		Where(where).
		OrderBy("created_at", "id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	var items []balance.OpeningStock
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return result, fmt.Errorf("select opening stock: %w", err)
	}

	result.Items = items
	result.TotalCount = total
	result.Limit = filter.Limit
	result.Offset = filter.Offset
	return result, nil
}

func openingFilter(f balance.OpeningStockFilter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"organization_id": f.OrganizationID}}
	if f.ItemID != nil {
		where = append(where, squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.WarehouseID != nil {
		where = append(where, squirrel.Eq{"warehouse_id": *f.WarehouseID})
	}
	return where
}

// warehouseCond matches a nullable warehouse column.
func warehouseCond(warehouseID *id.ID) squirrel.Sqlizer {
	return squirrel.Expr("warehouse_id IS NOT DISTINCT FROM ?", warehouseID)
}
