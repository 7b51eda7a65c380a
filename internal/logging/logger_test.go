package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetGlobalLogger(t *testing.T) {
	original := Logger
	t.Cleanup(func() { SetGlobalLogger(original) })

	var buf bytes.Buffer
	SetGlobalLogger(zerolog.New(&buf))

	Info().Str("component", "collector").Msg("navigation started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "navigation started", entry["message"])
	require.Equal(t, "collector", entry["component"])
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	original := Logger
	t.Cleanup(func() { SetGlobalLogger(original) })

	var buf bytes.Buffer
	SetGlobalLogger(zerolog.New(&buf))

	Ctx(context.Background()).Info().Msg("no logger attached")
	require.Contains(t, buf.String(), "no logger attached")
}

func TestCtxPrefersAttachedLogger(t *testing.T) {
	original := Logger
	t.Cleanup(func() { SetGlobalLogger(original) })

	var global, scoped bytes.Buffer
	SetGlobalLogger(zerolog.New(&global))

	attached := zerolog.New(&scoped)
	ctx := attached.WithContext(context.Background())

	Ctx(ctx).Info().Msg("scoped message")
	require.Contains(t, scoped.String(), "scoped message")
	require.Empty(t, global.String())
}
