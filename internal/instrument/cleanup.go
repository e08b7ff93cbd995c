package instrument

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunCleanup prunes events older than retention every interval until ctx is
// done.
func RunCleanup(ctx context.Context, eb *EventBuffer, retention, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := eb.Prune(now.Add(-retention)); n > 0 {
				logger.Debug("event cleanup", zap.Int("deleted", n))
			}
		}
	}
}
