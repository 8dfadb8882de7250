// Package logbridge turns log entries into Airbrake notices.
package logbridge

import (
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	airbrake "github.com/your-org/roadrunner-airbrake"
)

// ZapCore is a zapcore.Core that reports every enabled entry. An error field
// on the entry is reported as is; otherwise the message becomes the error.
// Combine it with the application core through zapcore.NewTee.
type ZapCore struct {
	zapcore.LevelEnabler

	reporter airbrake.Reporter
	fields   []zapcore.Field
}

// NewZapCore reports entries at or above enabler's level
func NewZapCore(reporter airbrake.Reporter, enabler zapcore.LevelEnabler) *ZapCore {
	return &ZapCore{LevelEnabler: enabler, reporter: reporter}
}

func (c *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *ZapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ZapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	err := errorField(fields)
	if err == nil {
		err = errorField(c.fields)
	}
	if err == nil {
		err = errors.New(ent.Message)
	} else if ent.Message != "" {
		err = errors.Wrap(err, ent.Message)
	}

	return c.reporter.Notify(err, airbrake.WithSeverity(ZapSeverity(ent.Level)))
}

func (c *ZapCore) Sync() error {
	return nil
}

func errorField(fields []zapcore.Field) error {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Type != zapcore.ErrorType {
			continue
		}
		if err, ok := fields[i].Interface.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// ZapSeverity maps zap levels onto notice severities
func ZapSeverity(level zapcore.Level) airbrake.Severity {
	switch level {
	case zapcore.DebugLevel:
		return airbrake.SeverityDebug
	case zapcore.InfoLevel:
		return airbrake.SeverityInfo
	case zapcore.WarnLevel:
		return airbrake.SeverityWarning
	case zapcore.ErrorLevel:
		return airbrake.SeverityError
	case zapcore.DPanicLevel:
		return airbrake.SeverityCritical
	case zapcore.PanicLevel:
		return airbrake.SeverityAlert
	case zapcore.FatalLevel:
		return airbrake.SeverityEmergency
	default:
		return airbrake.SeverityError
	}
}
