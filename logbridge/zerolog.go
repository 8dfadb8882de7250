package logbridge

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	airbrake "github.com/your-org/roadrunner-airbrake"
)

// ZerologHook reports events at or above MinLevel. Install it with
// logger.Hook(hook).
type ZerologHook struct {
	Reporter airbrake.Reporter
	MinLevel zerolog.Level
}

// NewZerologHook reports error level events and above
func NewZerologHook(reporter airbrake.Reporter) *ZerologHook {
	return &ZerologHook{Reporter: reporter, MinLevel: zerolog.ErrorLevel}
}

func (h *ZerologHook) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level < h.MinLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return
	}
	_ = h.Reporter.Notify(errors.New(message), airbrake.WithSeverity(ZerologSeverity(level)))
}

// ZerologSeverity maps zerolog levels onto notice severities
func ZerologSeverity(level zerolog.Level) airbrake.Severity {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return airbrake.SeverityDebug
	case zerolog.InfoLevel:
		return airbrake.SeverityInfo
	case zerolog.WarnLevel:
		return airbrake.SeverityWarning
	case zerolog.ErrorLevel:
		return airbrake.SeverityError
	case zerolog.FatalLevel:
		return airbrake.SeverityEmergency
	case zerolog.PanicLevel:
		return airbrake.SeverityAlert
	default:
		return airbrake.SeverityError
	}
}
