// Package log provides the module-scoped, key-value style logger used
// across the indexer, mirroring the NewModuleLogger(name) convention
// klaytn's own packages call into (datasync/chaindatafetcher,
// cmd/kcn) but built on zap's SugaredLogger instead of a hand-rolled
// log15 fork.
package log

import (
	"os"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module identifies the subsystem a logger belongs to; it is attached
// to every line as the "module" field.
type Module string

const (
	Parser        Module = "parser"
	Consumer      Module = "consumer"
	Broker        Module = "broker"
	ChainProvider Module = "chain"
	Store         Module = "store"
	Runner        Module = "runner"
	CMD           Module = "cmd"
)

var base *zap.SugaredLogger

func init() {
	SetLevel(zapcore.InfoLevel)
}

// SetLevel rebuilds the base logger at the given level. init sets it
// to info; no command-line flag changes it.
func SetLevel(level zapcore.Level) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(colorable.NewColorable(os.Stderr)),
		level,
	)
	base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Logger is the interface every package in the indexer logs through.
// Ctx is a flat list of alternating key/value pairs, matching the
// go-ethereum/klaytn family convention (logger.Info("msg", "key", val)).
type Logger interface {
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type moduleLogger struct {
	module Module
}

// NewModuleLogger returns a Logger tagged with the given module name.
func NewModuleLogger(module Module) Logger {
	return &moduleLogger{module: module}
}

func (l *moduleLogger) with(ctx []interface{}) []interface{} {
	return append([]interface{}{"module", string(l.module)}, ctx...)
}

func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { base.Debugw(msg, l.with(ctx)...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { base.Infow(msg, l.with(ctx)...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { base.Warnw(msg, l.with(ctx)...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { base.Errorw(msg, l.with(ctx)...) }

// Crit logs at error level and does not exit the process: component
// failures in this pipeline are isolated per-chain/per-consumer and
// must never bring down the whole daemon (§7 propagation rule).
func (l *moduleLogger) Crit(msg string, ctx ...interface{}) { base.Errorw("CRIT: "+msg, l.with(ctx)...) }
