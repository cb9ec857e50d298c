package jobs

import (
	"context"
	"fmt"

	"clubledger-backend/internal/logger"
)

// AuditLedger compares every child's balance with its opening balance plus
// journal. Drift is logged and exported by the ledger service; the job run
// itself fails so the alert shows up in job metrics too.
func (jr *JobRunner) AuditLedger() string {
	return jr.runWithRecovery("AuditLedger", func(ctx context.Context) error {
		drifts, err := jr.services.Ledger.AuditBalances(ctx)
		if err != nil {
			return fmt.Errorf("audit balances: %w", err)
		}
		if len(drifts) > 0 {
			return fmt.Errorf("%d children drift from their journal", len(drifts))
		}
		logger.Info("Ledger audit clean")
		return nil
	})
}
