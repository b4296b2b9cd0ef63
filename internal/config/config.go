// Package config loads server configuration from an optional YAML file
// layered over built-in defaults, then applies environment-variable
// overrides on top.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration: listen address and
// player cap alongside the netcode/tick/prediction/bandwidth knobs.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	MaxPlayers int    `yaml:"max_players"`

	ProtocolID        uint64        `yaml:"protocol_id"`
	TokenExpirySecs   int           `yaml:"token_expire_secs"`
	ClientTimeout     time.Duration `yaml:"client_timeout"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`

	TickRate         int     `yaml:"tick_rate"`
	MaxRollbackTicks int32   `yaml:"max_rollback_ticks"`
	CorrectionFactor float64 `yaml:"correction_ticks_factor"`

	BandwidthBytesPerSecond float64 `yaml:"bandwidth_bytes_per_second"`
	BandwidthBurstBytes     int     `yaml:"bandwidth_burst_bytes"`

	DisconnectPacketCount int           `yaml:"disconnect_packet_count"`
	DisconnectPacketGap   time.Duration `yaml:"disconnect_packet_gap"`

	PrespawnSaltEnv string `yaml:"-"` // never serialized; read from env only
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	return Config{
		Host:       "0.0.0.0",
		Port:       7777,
		MaxPlayers: 100,

		ProtocolID:        0x746963776972,
		TokenExpirySecs:   30,
		ClientTimeout:     10 * time.Second,
		KeepAliveInterval: 1 * time.Second,

		TickRate:         60,
		MaxRollbackTicks: 18,
		CorrectionFactor: 1.0,

		BandwidthBytesPerSecond: 64 * 1024,
		BandwidthBurstBytes:     16 * 1024,

		DisconnectPacketCount: 10,
		DisconnectPacketGap:   10 * time.Millisecond,
	}
}

// Load reads YAML from path over the defaults, then applies environment
// overrides (NETCODE_HOST, NETCODE_PORT, NETCODE_MAX_PLAYERS). A missing
// file is not an error; Load just returns the defaults plus env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrap(err, "config: parse yaml")
			}
		case os.IsNotExist(err):
			// fall through to defaults + env
		default:
			return Config{}, errors.Wrap(err, "config: read file")
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETCODE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("NETCODE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("NETCODE_MAX_PLAYERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPlayers = n
		}
	}
	cfg.PrespawnSaltEnv = os.Getenv("NETCODE_PRESPAWN_SALT")
}

// TickDuration derives the fixed-update period from TickRate.
func (c Config) TickDuration() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TickRate)
}
