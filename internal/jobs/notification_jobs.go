package jobs

import (
	"context"
	"fmt"
	"time"

	"clubledger-backend/internal/logger"
)

// ReadNotificationRetention is how long read notifications are kept.
const ReadNotificationRetention = 90 * 24 * time.Hour

// PurgeReadNotifications deletes notifications read more than
// ReadNotificationRetention ago.
func (jr *JobRunner) PurgeReadNotifications() string {
	return jr.runWithRecovery("PurgeReadNotifications", func(ctx context.Context) error {
		n, err := jr.services.Notifications.PurgeRead(ctx, ReadNotificationRetention)
		if err != nil {
			return fmt.Errorf("purge read notifications: %w", err)
		}
		logger.Info("Purged read notifications", "count", n)
		return nil
	})
}
