// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)

	// Shutdown on the noop provider is a no-op.
	assert.NoError(t, p.Shutdown(context.Background()))

	// Instrumented code can still start spans.
	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()
}

func TestNewProviderRejectsUnknownProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Endpoint: "localhost:4317",
		Protocol: "carrier-pigeon",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}
