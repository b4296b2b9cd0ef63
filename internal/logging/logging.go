// Package logging provides a zap-backed logger factory with a "banner
// plus leveled Info/Warn/Error/Success" calling convention and structured
// fields (peer address, tick, channel id).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger (Info level and above). debug=true
// switches to a development config (console encoder, caller info).
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests and defaults.
func Nop() *zap.Logger { return zap.NewNop() }

// Banner writes the startup banner as a plain stdout write since it is
// operator-facing decoration rather than structured log output.
func Banner(title, version string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-61s ║\n", title)
	fmt.Printf("║ %-61s ║\n", "version "+version)
	fmt.Printf("╚%s╝\n\n", border)
}

// Success is a thin convenience wrapper: an Info-level log tagged so
// operators can grep for successful startup milestones.
func Success(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Info(msg, append(fields, zap.Bool("success", true))...)
}
