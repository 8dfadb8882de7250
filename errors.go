package airbrake

import (
	"github.com/roadrunner-server/errors"
)

var (
	ErrProjectIDRequired  = errors.Str("Project Id is required")
	ErrProjectKeyRequired = errors.Str("Project Key is required")
	// ErrRateLimited is returned without touching the network while the server
	// asked us to back off.
	ErrRateLimited = errors.Str("airbrake: delivery is rate limited")
	// ErrCircuitOpen is returned when the transport circuit breaker rejects the request
	ErrCircuitOpen    = errors.Str("airbrake: circuit breaker is open")
	ErrNotifierClosed = errors.Str("airbrake: notifier is closed")
)
