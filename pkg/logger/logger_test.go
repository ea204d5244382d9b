package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "stockledger/internal/core/context"
)

func TestFromContext_AddsTraceAndUserFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithLogger(context.Background(), NewFromCore(core))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", SpanID: "s-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", OrganizationID: "org-x"})

	Info(ctx, "ledger entry posted", "number", 7)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "org-x", fields["organization_id"])
	assert.EqualValues(t, 7, fields["number"])
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetDefault(NewFromCore(core))

	Info(context.Background(), "dropped below level")
	Warn(context.Background(), "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestNew_UnknownLevelReadsAsInfo(t *testing.T) {
	l, err := New(Config{Level: "verbose", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
}
