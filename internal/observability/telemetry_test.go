package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTelemetry(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	shutdown, err := InitTelemetry(context.Background(), "room-scanner-test")
	require.NoError(t, err)
	assert.NotSame(t, prev, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}
