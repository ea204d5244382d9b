package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_CompressRoundTrip(t *testing.T) {
	s, err := NewAuditService(nil)
	require.NoError(t, err)

	small := AuditEntry{Changes: json.RawMessage(`{"new":{"number":1}}`)}
	s.compress(&small)
	assert.Equal(t, CompressionNone, small.CompressionAlgo)
	assert.Nil(t, small.ChangesCompressed)

	payload := map[string]string{"note": string(bytes.Repeat([]byte("x"), 20*1024))}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	large := AuditEntry{Changes: raw}
	s.compress(&large)
	assert.Equal(t, CompressionZstd, large.CompressionAlgo)
	assert.Nil(t, large.Changes)
	assert.Less(t, len(large.ChangesCompressed), len(raw))

	require.NoError(t, s.decompress(&large))
	assert.JSONEq(t, string(raw), string(large.Changes))
}
