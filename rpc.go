package airbrake

import (
	"context"

	"go.uber.org/zap"
)

// RPC provides RPC methods for PHP workers. Workers send notices they built
// themselves; filters, truncation and delivery happen here.
type RPC struct {
	notifier *Notifier
	logger   *zap.Logger
}

// NewRPC creates a new RPC instance
func NewRPC(notifier *Notifier, logger *zap.Logger) *RPC {
	return &RPC{
		notifier: notifier,
		logger:   logger,
	}
}

// Notify sends a notice and waits for the outcome
func (r *RPC) Notify(notice *Notice, result *Response) error {
	r.logger.Debug("Received notice via RPC", zap.Int("errors", errorCount(notice)))

	f, err := r.notifier.SendNoticeAsync(context.Background(), notice)
	if err != nil {
		return err
	}

	resp, err := f.Result()
	if err != nil {
		r.logger.Error("Failed to deliver notice", zap.Error(err))
		return err
	}

	*result = *resp
	return nil
}

// NotifyAsync starts sending a notice; result reports whether it was accepted
func (r *RPC) NotifyAsync(notice *Notice, result *bool) error {
	r.logger.Debug("Received async notice via RPC", zap.Int("errors", errorCount(notice)))

	if _, err := r.notifier.SendNoticeAsync(context.Background(), notice); err != nil {
		*result = false
		return err
	}

	*result = true
	return nil
}

func errorCount(n *Notice) int {
	if n == nil {
		return 0
	}
	return len(n.Errors)
}
