package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	FromContext(ctx).Info("folded", "node", "sum")
	assert.Contains(t, buf.String(), "node=sum")
}

func TestFromContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("dropped") })
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	FromContext(With(ctx, "func", "VectorField")).Info("pruned")
	assert.Contains(t, buf.String(), "func=VectorField")

	buf.Reset()
	FromContext(ctx).Info("untouched")
	assert.NotContains(t, buf.String(), "func=")

	assert.NotPanics(t, func() { FromContext(With(context.Background(), "k", 1)).Info("dropped") })
}
