// Package audit consumes archive events.
package audit

import (
	"context"
	"log/slog"

	"github.com/yourorg/address-formatter/internal/events"
)

// Logger writes one structured log line per archived address.
type Logger struct {
	Pub    events.Publisher
	Logger *slog.Logger
}

// Run blocks until ctx is done.
func (l *Logger) Run(ctx context.Context) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sub := l.Pub.SubscribeAddressFormatted()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub:
			logger.InfoContext(ctx, "address archived",
				"id", evt.ID,
				"request_key", evt.RequestKey,
				"country_code", evt.CountryCode,
			)
		}
	}
}
