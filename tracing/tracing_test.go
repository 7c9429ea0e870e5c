package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "span_test.txt")
	require.NoError(t, Init("podwork", "0.0.1", fname))

	ctx, span := StartSpan(context.Background(), "dispatch", "INTERNAL")
	span.WithAttributes(map[string]string{"job.key": "j1"})
	_, child := StartSpan(ctx, "execute", "CLIENT")
	EndSpan(child, errors.New("failed"))
	EndSpan(span, nil)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestNilSpan(t *testing.T) {
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"k": "v"}))
	span.SetStatus(nil)
	EndSpan(span, nil)
}
