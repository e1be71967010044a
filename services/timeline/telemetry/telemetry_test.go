// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitNilContext(t *testing.T) {
	var nilCtx context.Context
	_, err := Init(nilCtx, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInitNoneInstallsNothing(t *testing.T) {
	for _, exporter := range []string{"", "none"} {
		shutdown, err := Init(context.Background(), Config{Exporter: exporter})
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "jaegerish"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInitStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	shutdown, err := Init(ctx, Config{
		ServiceName:    "timelayer-test",
		ServiceVersion: "0.0.0",
		Exporter:       "stdout",
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(ctx, "test-span")
	span.End()

	// Shutdown flushes the batcher.
	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "test-span")
	assert.Contains(t, buf.String(), "timelayer-test")
}
