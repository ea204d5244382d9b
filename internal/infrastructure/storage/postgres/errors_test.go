package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
)

func TestClassifyTxError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{
			name:      "serialization failure",
			err:       fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40001"}),
			wantCode:  apperror.CodeConcurrencyConflict,
			retryable: true,
		},
		{
			name:      "deadlock",
			err:       &pgconn.PgError{Code: "40P01"},
			wantCode:  apperror.CodeConcurrencyConflict,
			retryable: true,
		},
		{
			name:      "lock not available",
			err:       &pgconn.PgError{Code: "55P03"},
			wantCode:  apperror.CodeConcurrencyConflict,
			retryable: true,
		},
		{
			name:      "other database error",
			err:       &pgconn.PgError{Code: "23503"},
			wantCode:  apperror.CodeConsistency,
			retryable: true,
		},
		{
			name:      "plain error",
			err:       errors.New("connection reset"),
			wantCode:  apperror.CodeConsistency,
			retryable: true,
		},
		{
			name:     "app error passes through",
			err:      apperror.NewValidation("bad"),
			wantCode: apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyTxError(tt.err)
			assert.True(t, apperror.HasCode(got, tt.wantCode), "got %v", got)
			assert.Equal(t, tt.retryable, apperror.IsRetryable(got))
		})
	}

	assert.NoError(t, classifyTxError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}
