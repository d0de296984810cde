package usecase

import (
	"context"
	"testing"
	"time"

	applogger "StockVote/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionRun(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2024, 6, 30, 2, 0, 0, 0, time.UTC)
	job := NewRetentionJob(store, 90*24*time.Hour, applogger.Nop(), nil)
	job.now = func() time.Time { return now }

	n, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, now.Add(-90*24*time.Hour), store.cutoff)

	short := job.WithHorizon(24 * time.Hour)
	_, err = short.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), store.cutoff)
}
