package jobs

import (
	"context"
	"fmt"

	"clubledger-backend/internal/logger"
)

// ExpireStalePayments fails checkouts that stayed PENDING longer than the
// configured TTL.
func (jr *JobRunner) ExpireStalePayments() string {
	return jr.runWithRecovery("ExpireStalePayments", func(ctx context.Context) error {
		ttl := jr.config.PendingPaymentTTL()
		expired, err := jr.services.Payments.ExpireStalePayments(ctx, ttl)
		if err != nil {
			return fmt.Errorf("expire stale payments (%d expired before failure): %w", expired, err)
		}
		logger.Info("Expired stale payments", "count", expired, "ttl", ttl)
		return nil
	})
}
