package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
)

func TestQuantity_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Quantity
		wantErr bool
	}{
		{name: "integer", input: `10`, want: 10},
		{name: "zero fraction", input: `5.0`, want: 5},
		{name: "string", input: `"7"`, want: 7},
		{name: "negative", input: `-3`, want: -3},
		{name: "null", input: `null`, want: 0},
		{name: "fraction", input: `2.5`, wantErr: true},
		{name: "garbage", input: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Quantity
			err := json.Unmarshal([]byte(tt.input), &q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestAmount(t *testing.T) {
	got := Amount(MustMoney("12.50"), 4)
	assert.True(t, got.Equal(MustMoney("50")), got.String())
}

func TestQuantity_Add(t *testing.T) {
	tests := []struct {
		name    string
		q, o    Quantity
		want    Quantity
		wantErr bool
	}{
		{name: "plain", q: 4, o: 6, want: 10},
		{name: "negative delta", q: 4, o: -6, want: -2},
		{name: "up to max", q: math.MaxInt64 - 1, o: 1, want: math.MaxInt64},
		{name: "past max", q: math.MaxInt64, o: 1, wantErr: true},
		{name: "past min", q: math.MinInt64, o: -1, wantErr: true},
		{name: "large opposite signs", q: math.MaxInt64, o: math.MinInt64, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.q.Add(tt.o)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
