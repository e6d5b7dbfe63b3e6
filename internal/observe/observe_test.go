package observe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestNewLoggerConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := NewLogger(LogOptions{Level: "info", Out: buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("session created", zap.String("session_id", "abc"))
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "session created")
	assert.Contains(t, buf.String(), "abc")
}

func TestNewLoggerJSONWithFile(t *testing.T) {
	buf := &bytes.Buffer{}
	file := filepath.Join(t.TempDir(), "docchat.log")
	log, err := NewLogger(LogOptions{Level: "debug", Format: "json", File: file, Out: buf})
	require.NoError(t, err)

	log.Debug("indexed", zap.Int("passages", 3))
	_ = log.Sync()

	assert.Contains(t, buf.String(), `"message":"indexed"`)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"passages":3`)
}

func TestNewLoggerRejectsBadOptions(t *testing.T) {
	_, err := NewLogger(LogOptions{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LogOptions{Format: "xml"})
	assert.Error(t, err)
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TraceOptions{}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpansRecordErrors(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartSpan(context.Background(), "service.Answer")
	EndSpan(span, errors.New("boom"))
	_, ok := StartSpan(context.Background(), "service.Ingest")
	EndSpan(ok, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "service.Answer", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
	assert.Empty(t, spans[1].Events())
}
