package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubledger-backend/internal/config"
	"clubledger-backend/internal/jobs"
	"clubledger-backend/internal/scheduler"
)

func TestNewScheduler(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		AuditLedger:            "0 0 3 * * *",
		ExpireStalePayments:    "0 */15 * * * *",
		PurgeReadNotifications: "0 30 4 * * 0",
	}}

	s, err := scheduler.NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Entries())

	s.Start()
	s.Stop()
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		AuditLedger:            "every night",
		ExpireStalePayments:    "0 */15 * * * *",
		PurgeReadNotifications: "0 30 4 * * 0",
	}}

	_, err := scheduler.NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	assert.ErrorContains(t, err, "AuditLedger")
}
