package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type purgerStub struct {
	cutoff time.Time
	calls  int
	err    error
}

func (p *purgerStub) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	p.calls++
	p.cutoff = before
	return 2, p.err
}

func TestMaintenanceServiceRegistersPurgeJob(t *testing.T) {
	svc, err := NewMaintenanceService(&purgerStub{}, MaintenanceConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	jobs := svc.scheduler.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, purgeJobName, jobs[0].Name())
}

func TestMaintenanceServiceRejectsBadSchedule(t *testing.T) {
	_, err := NewMaintenanceService(&purgerStub{}, MaintenanceConfig{Schedule: "every tuesday"}, nil)
	assert.Error(t, err)
}

func TestMaintenanceServicePurgeUsesRetention(t *testing.T) {
	purger := &purgerStub{}
	svc, err := NewMaintenanceService(purger, MaintenanceConfig{Retention: 24 * time.Hour}, nil)
	require.NoError(t, err)
	defer svc.Stop()

	now := time.Date(2024, 3, 2, 4, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.purgeOnce()
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, now.Add(-24*time.Hour), purger.cutoff)

	purger.err = errors.New("db down")
	svc.purgeOnce()
	assert.Equal(t, 2, purger.calls)
}
