package balance_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/balance"
	"stockledger/internal/infrastructure/storage/memory"
)

func newService(t *testing.T, opts balance.Options) (*memory.Store, *balance.Service) {
	t.Helper()
	store := memory.New()
	return store, balance.NewService(store.Balances(), store, opts)
}

func key(org string) balance.Key {
	wh := id.New()
	return balance.Key{OrganizationID: org, ItemID: id.New(), WarehouseID: &wh}
}

func TestGet_AbsentKeyIsZeroAndNotPersisted(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")

	b, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), b.ClosingBalance)
	assert.Equal(t, k.ItemID, b.ItemID)

	report, err := svc.List(ctx, balance.ListFilter{OrganizationID: "org-x"})
	require.NoError(t, err)
	assert.Empty(t, report.Items)
}

func TestApplyDelta_CreatesLazilyAndAccumulates(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")

	b, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: 10, Received: 10})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), b.ClosingBalance)
	assert.Equal(t, types.Quantity(10), b.Received)

	b, err = svc.ApplyDelta(ctx, k, balance.Delta{Quantity: -4})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(6), b.ClosingBalance)
	assert.Equal(t, types.Quantity(10), b.Received)

	stored, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(6), stored.ClosingBalance)
	assert.Equal(t, types.Quantity(0), stored.OpeningBalance)
}

func TestApplyDelta_NegativeAllowedByDefault(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})

	b, err := svc.ApplyDelta(ctx, key("org-x"), balance.Delta{Quantity: -3})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(-3), b.ClosingBalance)
}

func TestApplyDelta_ForbidNegative(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{ForbidNegative: true})
	k := key("org-x")

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: 2, Received: 2})
	require.NoError(t, err)

	_, err = svc.ApplyDelta(ctx, k, balance.Delta{Quantity: -5})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	b, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), b.ClosingBalance)
}

func TestApplyDelta_InvalidKey(t *testing.T) {
	_, svc := newService(t, balance.Options{})

	_, err := svc.ApplyDelta(context.Background(), balance.Key{}, balance.Delta{Quantity: 1})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	appErr, _ := apperror.AsAppError(err)
	fields := appErr.Details["fields"].(map[string]string)
	assert.Contains(t, fields, "organization_id")
	assert.Contains(t, fields, "item_id")
}

func TestRecordOpeningStock(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")

	o := &balance.OpeningStock{
		OrganizationID: k.OrganizationID,
		ItemID:         k.ItemID,
		WarehouseID:    k.WarehouseID,
		Quantity:       7,
		Rate:           types.MustMoney("2.50"),
	}
	b, err := svc.RecordOpeningStock(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(7), b.OpeningBalance)
	assert.Equal(t, types.Quantity(7), b.ClosingBalance)
	assert.True(t, o.Amount.Equal(types.MustMoney("17.5")))
	assert.False(t, id.IsNil(o.ID))

	_, err = svc.ApplyDelta(ctx, k, balance.Delta{Quantity: 3, Received: 3})
	require.NoError(t, err)

	b, err = svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, b.OpeningBalance+3, b.ClosingBalance)
}

func TestRecordOpeningStock_AmountMismatch(t *testing.T) {
	_, svc := newService(t, balance.Options{})
	k := key("org-x")

	_, err := svc.RecordOpeningStock(context.Background(), &balance.OpeningStock{
		OrganizationID: k.OrganizationID,
		ItemID:         k.ItemID,
		Quantity:       2,
		Rate:           types.MustMoney("3"),
		Amount:         types.MustMoney("5"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestSortKeys(t *testing.T) {
	a := balance.Key{OrganizationID: "org", ItemID: id.MustParse("00000000-0000-7000-8000-000000000002")}
	b := balance.Key{OrganizationID: "org", ItemID: id.MustParse("00000000-0000-7000-8000-000000000001")}

	ordered, err := balance.SortKeys([]balance.Key{a, b, a})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, b.ItemID, ordered[0].ItemID)
	assert.Equal(t, a.ItemID, ordered[1].ItemID)

	_, err = balance.SortKeys([]balance.Key{{OrganizationID: "org"}})
	assert.True(t, apperror.IsValidation(err))
}

func TestListAndSummary(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})

	item := id.New()
	w1, w2 := id.New(), id.New()
	_, err := svc.ApplyDelta(ctx, balance.Key{OrganizationID: "org", ItemID: item, WarehouseID: &w1}, balance.Delta{Quantity: 5, Received: 5})
	require.NoError(t, err)
	_, err = svc.ApplyDelta(ctx, balance.Key{OrganizationID: "org", ItemID: item, WarehouseID: &w2}, balance.Delta{Quantity: 3, Received: 3})
	require.NoError(t, err)
	_, err = svc.ApplyDelta(ctx, balance.Key{OrganizationID: "other", ItemID: item, WarehouseID: &w1}, balance.Delta{Quantity: 100})
	require.NoError(t, err)

	report, err := svc.List(ctx, balance.ListFilter{OrganizationID: "org", ItemID: &item})
	require.NoError(t, err)
	assert.Len(t, report.Items, 2)
	assert.EqualValues(t, 2, report.TotalCount)
	assert.Equal(t, 50, report.Limit)

	page, err := svc.List(ctx, balance.ListFilter{
		OrganizationID: "org",
		ListFilter:     domain.ListFilter{Limit: 1, Offset: 1},
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 2, page.TotalCount)

	summary, err := svc.SummaryByItem(ctx, "org")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, types.Quantity(8), summary[0].ClosingBalance)
	assert.Equal(t, 2, summary[0].Warehouses)

	_, err = svc.List(ctx, balance.ListFilter{})
	assert.True(t, apperror.IsValidation(err))
}

func TestApplyDelta_OverflowLeavesBalanceUnchanged(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: math.MaxInt64, Received: math.MaxInt64})
	require.NoError(t, err)

	_, err = svc.ApplyDelta(ctx, k, balance.Delta{Quantity: 1, Received: 1})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Contains(t, appErr.Details["fields"], "closing_balance")

	b, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(math.MaxInt64), b.ClosingBalance)
	assert.Equal(t, types.Quantity(math.MaxInt64), b.Received)
}

func TestRecordOpeningStock_Overflow(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: math.MaxInt64})
	require.NoError(t, err)

	_, err = svc.RecordOpeningStock(ctx, &balance.OpeningStock{
		OrganizationID: k.OrganizationID,
		ItemID:         k.ItemID,
		WarehouseID:    k.WarehouseID,
		Quantity:       1,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	b, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), b.OpeningBalance)
	assert.Equal(t, types.Quantity(math.MaxInt64), b.ClosingBalance)
}

func recordOpening(t *testing.T, svc *balance.Service, k balance.Key, qty types.Quantity) *balance.OpeningStock {
	t.Helper()
	o := &balance.OpeningStock{
		OrganizationID: k.OrganizationID,
		ItemID:         k.ItemID,
		WarehouseID:    k.WarehouseID,
		Quantity:       qty,
		Rate:           types.MustMoney("2"),
	}
	_, err := svc.RecordOpeningStock(context.Background(), o)
	require.NoError(t, err)
	return o
}

func TestOpeningStock_GetAndList(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")
	first := recordOpening(t, svc, k, 4)
	recordOpening(t, svc, key("org-x"), 2)
	recordOpening(t, svc, key("org-y"), 9)

	got, err := svc.GetOpeningStock(ctx, "org-x", first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(4), got.Quantity)
	assert.True(t, got.Amount.Equal(types.MustMoney("8")))

	_, err = svc.GetOpeningStock(ctx, "org-y", first.ID)
	assert.True(t, apperror.IsNotFound(err))

	page, err := svc.ListOpeningStock(ctx, balance.OpeningStockFilter{OrganizationID: "org-x"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)

	page, err = svc.ListOpeningStock(ctx, balance.OpeningStockFilter{OrganizationID: "org-x", ItemID: &k.ItemID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)

	_, err = svc.ListOpeningStock(ctx, balance.OpeningStockFilter{})
	assert.True(t, apperror.IsValidation(err))
}

func TestUpdateOpeningStock_MovesBalanceByDifference(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")
	o := recordOpening(t, svc, k, 10)

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: -3})
	require.NoError(t, err)

	tests := []struct {
		name    string
		qty     types.Quantity
		opening types.Quantity
		closing types.Quantity
	}{
		{"raise", 15, 15, 12},
		{"lower", 4, 4, 1},
		{"same quantity", 4, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, b, err := svc.UpdateOpeningStock(ctx, "org-x", o.ID, balance.OpeningStockChange{
				Quantity: tt.qty,
				Rate:     types.MustMoney("1"),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.qty, updated.Quantity)
			assert.True(t, updated.Amount.Equal(types.Amount(types.MustMoney("1"), tt.qty)))
			assert.Equal(t, tt.opening, b.OpeningBalance)
			assert.Equal(t, tt.closing, b.ClosingBalance)

			stored, err := svc.GetOpeningStock(ctx, "org-x", o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.qty, stored.Quantity)
			assert.Equal(t, updated.Version, stored.Version)
		})
	}
}

func TestUpdateOpeningStock_Rejections(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{ForbidNegative: true})
	k := key("org-x")
	o := recordOpening(t, svc, k, 10)

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: -8})
	require.NoError(t, err)

	_, _, err = svc.UpdateOpeningStock(ctx, "org-x", o.ID, balance.OpeningStockChange{Version: o.Version + 1, Quantity: 12})
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))

	_, _, err = svc.UpdateOpeningStock(ctx, "org-x", o.ID, balance.OpeningStockChange{Quantity: 0})
	assert.True(t, apperror.IsValidation(err))

	_, _, err = svc.UpdateOpeningStock(ctx, "org-x", o.ID, balance.OpeningStockChange{Quantity: 1})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	_, _, err = svc.UpdateOpeningStock(ctx, "org-y", o.ID, balance.OpeningStockChange{Quantity: 5})
	assert.True(t, apperror.IsNotFound(err))

	b, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), b.OpeningBalance)
	assert.Equal(t, types.Quantity(2), b.ClosingBalance)

	stored, err := svc.GetOpeningStock(ctx, "org-x", o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), stored.Quantity)
}

func TestUpdateOpeningStock_FailedWriteRollsBackBalance(t *testing.T) {
	ctx := context.Background()
	store, svc := newService(t, balance.Options{})
	k := key("org-x")
	o := recordOpening(t, svc, k, 10)

	store.SetFailure(memory.FailOnCall("opening_stock.update", 1, errors.New("connection reset")))
	_, _, err := svc.UpdateOpeningStock(ctx, "org-x", o.ID, balance.OpeningStockChange{Quantity: 3})
	require.Error(t, err)

	b, err := svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), b.OpeningBalance)
	assert.Equal(t, types.Quantity(10), b.ClosingBalance)
}

func TestDeleteOpeningStock_ReversesQuantity(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{})
	k := key("org-x")
	o := recordOpening(t, svc, k, 6)
	recordOpening(t, svc, k, 4)

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: 5, Received: 5})
	require.NoError(t, err)

	b, err := svc.DeleteOpeningStock(ctx, "org-x", o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(4), b.OpeningBalance)
	assert.Equal(t, types.Quantity(9), b.ClosingBalance)
	assert.Equal(t, types.Quantity(5), b.Received)

	_, err = svc.GetOpeningStock(ctx, "org-x", o.ID)
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.DeleteOpeningStock(ctx, "org-x", o.ID)
	assert.True(t, apperror.IsNotFound(err))

	b, err = svc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(4), b.OpeningBalance)
	assert.Equal(t, types.Quantity(9), b.ClosingBalance)
}

func TestDeleteOpeningStock_ForbidNegative(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t, balance.Options{ForbidNegative: true})
	k := key("org-x")
	o := recordOpening(t, svc, k, 6)

	_, err := svc.ApplyDelta(ctx, k, balance.Delta{Quantity: -4})
	require.NoError(t, err)

	_, err = svc.DeleteOpeningStock(ctx, "org-x", o.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	stored, err := svc.GetOpeningStock(ctx, "org-x", o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(6), stored.Quantity)
}
