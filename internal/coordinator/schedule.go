package coordinator

import (
	"context"
	"fmt"
	"time"
)

// Schedule runs a sync immediately, then every interval, until ctx is
// cancelled. Runs never overlap: a run that outlasts the interval delays
// the next one. onReport, if non-nil, receives every report.
//
// Returns ctx.Err() when stopped.
func (c *Coordinator) Schedule(ctx context.Context, interval time.Duration, onReport func(RunReport)) error {
	if interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", interval)
	}

	c.logger.Info("sync scheduler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report := c.Run(ctx)
		if onReport != nil {
			onReport(report)
		}

		select {
		case <-ctx.Done():
			c.logger.Info("sync scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
