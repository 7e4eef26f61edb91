package tracing

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("periodic-engine-test", ExporterStdout, &buf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "engine.Pass")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "engine.Pass")
	assert.Contains(t, buf.String(), "periodic-engine-test")
}

func TestInitTracer_UnknownExporter(t *testing.T) {
	_, err := InitTracer("x", "zipkin", io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
