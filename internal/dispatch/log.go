package dispatch

import (
	"context"
	"log/slog"

	"github.com/chrisdurfee/authgate/pkg/logger"
)

// LogDispatcher records delivery intent without sending anything. Used for
// channels with no provider wired up yet (sms, push) and in development.
// The code itself is never logged.
type LogDispatcher struct {
	channel string
	logger  *slog.Logger
}

func NewLogDispatcher(channel string, log *slog.Logger) *LogDispatcher {
	return &LogDispatcher{channel: channel, logger: log}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	d.logger.Info("verification code dispatched",
		slog.String("channel", d.channel),
		slog.String("email", logger.SanitizedEmail(delivery.Email)),
		slog.String("expires_in", delivery.ExpiresIn))
	return nil
}
