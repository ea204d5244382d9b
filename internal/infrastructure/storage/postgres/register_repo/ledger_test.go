package register_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

func TestEntryColumns(t *testing.T) {
	for _, col := range []string{
		"id", "version", "number", "organization_id", "item_id", "warehouse_id",
		"quantity", "movement_kind", "direction", "valuation_method", "journal_id",
	} {
		assert.Contains(t, entryColumns.Names(), col)
	}
	assert.NotContains(t, entryUpdatable.Names(), "organization_id")
	assert.Contains(t, entryUpdatable.Names(), "quantity")
}

func TestEntryFilter(t *testing.T) {
	item := id.New()
	journalID := id.New()

	sql, args, err := squirrel.Select("id").From(entriesTable).
		Where(entryFilter(ledger.ListFilter{
			OrganizationID: "org",
			ItemID:         &item,
			JournalID:      &journalID,
			Kind:           ledger.KindTransfer,
		})).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id FROM stock_ledger_entries WHERE (organization_id = $1 AND item_id = $2 AND journal_id = $3 AND movement_kind = $4)",
		sql)
	assert.Equal(t, []any{"org", item.String(), journalID.String(), ledger.KindTransfer}, args)
}

func TestWarehouseCond(t *testing.T) {
	sql, args, err := warehouseCond(nil).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "warehouse_id IS NOT DISTINCT FROM ?", sql)
	require.Len(t, args, 1)
	assert.Nil(t, args[0])
}
