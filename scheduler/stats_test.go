package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsSnapshotAccumulates(t *testing.T) {
	s := NewStats()
	s.RecordBatch(5*time.Millisecond, 3, 1)
	s.RecordBatch(2*time.Millisecond, 0, 2)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap["batches_run"])
	assert.Equal(t, int64(3), snap["tasks_succeeded"])
	assert.Equal(t, int64(3), snap["tasks_failed"])
}

func TestStopFlagRequestAndReset(t *testing.T) {
	var f StopFlag
	assert.False(t, f.Requested())
	f.Request()
	assert.True(t, f.Requested())
	f.Reset()
	assert.False(t, f.Requested())
}
