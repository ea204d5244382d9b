package register_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
)

func TestOpeningStockColumns(t *testing.T) {
	for _, col := range []string{"quantity", "rate", "amount", "is_active", "updated_at"} {
		assert.Contains(t, openingUpdatable.Names(), col)
	}
	for _, col := range []string{"id", "version", "organization_id", "item_id", "warehouse_id", "created_at"} {
		assert.NotContains(t, openingUpdatable.Names(), col)
		assert.Contains(t, openingColumns.Names(), col)
	}
}

func TestOpeningFilter(t *testing.T) {
	item := id.New()

	sql, args, err := squirrel.Select("id").From(openingStockTable).
		Where(openingFilter(balance.OpeningStockFilter{OrganizationID: "org", ItemID: &item})).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT id FROM opening_stock WHERE (organization_id = $1 AND item_id = $2)", sql)
	assert.Equal(t, []any{"org", item.String()}, args)
}
