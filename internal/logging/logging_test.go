package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProductionLoggerBuilds(t *testing.T) {
	log, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewDevelopmentLoggerBuilds(t *testing.T) {
	log, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNopLoggerDiscardsWithoutPanicking(t *testing.T) {
	log := Nop()
	require.NotPanics(t, func() {
		Success(log, "started", zap.String("addr", "0.0.0.0:7777"))
	})
}
