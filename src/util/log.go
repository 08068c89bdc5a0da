// log.go initialises the global compiler logger. Statistics and debug data
// go through zap; diagnostics intended for the user are printed with fmt by
// the reporting site, so that observable compiler output stays stable.

package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -------------------
// ----- Globals -----
// -------------------

// Log is the process wide sugared logger. It defaults to a no-op logger
// until InitLogger is called.
var Log = zap.NewNop().Sugar()

// ---------------------
// ----- Functions -----
// ---------------------

// InitLogger configures the global logger. In verbose mode debug level
// messages are written to stderr; otherwise only warnings and above appear.
func InitLogger(verbose bool) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = l.Sugar()
	return nil
}
