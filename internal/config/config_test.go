package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Port, cfg.Port)
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 10.0.0.5\nport: 9000\nmax_players: 40\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", cfg.Host)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 40, cfg.MaxPlayers)
	require.Equal(t, Default().TickRate, cfg.TickRate) // unset fields keep defaults
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("NETCODE_HOST", "192.168.1.1")
	t.Setenv("NETCODE_PORT", "4000")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.1", cfg.Host)
	require.Equal(t, 4000, cfg.Port)
}

func TestTickDurationDerivesFromTickRate(t *testing.T) {
	cfg := Default()
	cfg.TickRate = 50
	require.Equal(t, int64(20_000_000), cfg.TickDuration().Nanoseconds())
}

func TestDefaultSetsDisconnectBurstParameters(t *testing.T) {
	cfg := Default()
	require.Greater(t, cfg.DisconnectPacketCount, 0)
	require.Greater(t, cfg.DisconnectPacketGap, time.Duration(0))
}
