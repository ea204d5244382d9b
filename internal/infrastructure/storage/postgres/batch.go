package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// errBatchNeedsTx is returned when COPY is attempted outside a transaction.
var errBatchNeedsTx = errors.New("batch insert requires transaction context")

// BatchInserter writes many rows of one table with the COPY protocol.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice copies rows into table inside the transaction carried by ctx.
// Each row holds values in columns order.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.InTx(ctx)
	if tx == nil {
		return 0, errBatchNeedsTx
	}
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}
