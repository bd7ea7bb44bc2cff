package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/indexmap"
	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	c, err := content.Open(t.TempDir())
	require.NoError(t, err)
	m := indexmap.New()
	return New(s, c, m, zap.NewNop(), Config{AutobatchingEnabled: true})
}

// A task cancelation registered after ordinary data tasks still wins
// selection: control kinds outrank data batches regardless of uid order.
func TestSelectBatchCancelationBeatsRegistrationOrder(t *testing.T) {
	sched := newTestScheduler(t)

	_, err := sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "books"}))
	require.NoError(t, err)

	cancelTask, err := sched.store.Register(task.NewTaskCancelation(task.TaskCancelation{Query: "*"}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, shapeControl, batch.Shape)
	require.Len(t, batch.Tasks, 1)
	assert.Equal(t, cancelTask.UID, batch.Tasks[0].UID)
}

// With no control or snapshot work pending, the oldest enqueued data task's
// index determines which tasks get gathered into the data batch.
func TestSelectBatchFallsBackToOldestDataTask(t *testing.T) {
	sched := newTestScheduler(t)
	first, err := sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	_, err = sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "b"}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, "a", batch.Index)
	require.Len(t, batch.Tasks, 1)
	assert.Equal(t, first.UID, batch.Tasks[0].UID)
}

// An index swap batch gathers the swap task plus every earlier task
// touching either swapped index, for kind/details rewriting.
func TestSelectBatchGathersIndexSwapDependents(t *testing.T) {
	sched := newTestScheduler(t)
	clearA, err := sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	swap, err := sched.store.Register(task.NewIndexSwap(task.IndexSwap{Swaps: []task.IndexSwapPair{{LHS: "a", RHS: "b"}}}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, ShapeIndexSwap, batch.Shape)
	assert.Equal(t, swap.UID, batch.SwapID)

	var uids []uint32
	for _, tk := range batch.Tasks {
		uids = append(uids, tk.UID)
	}
	assert.ElementsMatch(t, []uint32{clearA.UID, swap.UID}, uids)
}

func TestSelectBatchReturnsNilWhenIdle(t *testing.T) {
	sched := newTestScheduler(t)
	batch, err := sched.selectBatch()
	require.NoError(t, err)
	assert.Nil(t, batch)
}
