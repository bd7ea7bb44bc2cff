package scheduler

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/task-scheduler/bitmap"
	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/task"
)

func registerImport(t *testing.T, sched *Scheduler, indexUID string, docs []content.Document) *task.Task {
	t.Helper()
	id, w, err := sched.content.NewWriter()
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, content.WriteDocument(w, d))
	}
	require.NoError(t, w.Close())

	tk, err := sched.store.Register(task.NewDocumentAdditionOrUpdate(task.DocumentAdditionOrUpdate{
		IndexUID: indexUID, ContentFile: id, DocumentsCount: uint64(len(docs)),
	}))
	require.NoError(t, err)
	return tk
}

func TestExecuteDocumentImportCreatesIndexAndIndexesDocuments(t *testing.T) {
	sched := newTestScheduler(t)
	registerImport(t, sched, "books", []content.Document{{"id": "1"}, {"id": "2"}})

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.True(t, batch.MustCreateIndex)

	require.NoError(t, sched.exec.Execute(batch, sched.stop))

	got, err := sched.store.Get(batch.Tasks[0].UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, got.Status)
	require.NotNil(t, got.Details.DocumentAdditionOrUpdate.IndexedDocuments)
	assert.Equal(t, uint64(2), *got.Details.DocumentAdditionOrUpdate.IndexedDocuments)
	assert.True(t, sched.mapper.Exists("books"))
}

func TestExecuteIndexCreationSucceeds(t *testing.T) {
	sched := newTestScheduler(t)
	tk, err := sched.store.Register(task.NewIndexCreation(task.IndexCreation{IndexUID: "books", PrimaryKey: "id"}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.NoError(t, sched.exec.Execute(batch, sched.stop))

	got, err := sched.store.Get(tk.UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, got.Status)
	assert.Equal(t, "id", got.Details.IndexInfo.PrimaryKey)
	assert.True(t, sched.mapper.Exists("books"))
}

func TestExecuteIndexCreationFailsOnDuplicate(t *testing.T) {
	sched := newTestScheduler(t)
	_, err := sched.mapper.Create("books", "id")
	require.NoError(t, err)

	tk, err := sched.store.Register(task.NewIndexCreation(task.IndexCreation{IndexUID: "books"}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.NoError(t, sched.exec.Execute(batch, sched.stop))

	got, err := sched.store.Get(tk.UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, task.CategoryIndexAlreadyExists, got.Error.Category)
}

func TestExecuteTaskCancelationCancelsEnqueuedTask(t *testing.T) {
	sched := newTestScheduler(t)
	toCancel := registerImport(t, sched, "books", []content.Document{{"id": "1"}})

	cancel, err := sched.store.Register(task.NewTaskCancelation(task.TaskCancelation{
		Query: "*", Tasks: bitmap.New(toCancel.UID),
	}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, shapeControl, batch.Shape)
	require.NoError(t, sched.exec.Execute(batch, sched.stop))

	canceled, err := sched.store.Get(toCancel.UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledBy)
	assert.Equal(t, cancel.UID, *canceled.CanceledBy)

	doneCancel, err := sched.store.Get(cancel.UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, doneCancel.Status)
}

func TestExecuteTaskCancelationDeletesContentFileOfCanceledTask(t *testing.T) {
	sched := newTestScheduler(t)
	toCancel := registerImport(t, sched, "books", []content.Document{{"id": "1"}})
	contentID, ok := toCancel.ContentFileID()
	require.True(t, ok)

	_, err := sched.content.GetUpdate(contentID)
	require.NoError(t, err)

	_, err = sched.store.Register(task.NewTaskCancelation(task.TaskCancelation{
		Query: "*", Tasks: bitmap.New(toCancel.UID),
	}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.NoError(t, sched.exec.Execute(batch, sched.stop))

	canceled, err := sched.store.Get(toCancel.UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCanceled, canceled.Status)

	_, err = sched.content.GetUpdate(contentID)
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteTaskDeletionRemovesOnlyTerminalTasks(t *testing.T) {
	sched := newTestScheduler(t)
	terminal, err := sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NoError(t, sched.exec.Execute(batch, sched.stop))
	got, err := sched.store.Get(terminal.UID)
	require.NoError(t, err)
	require.Equal(t, task.StatusSucceeded, got.Status)

	stillEnqueued, err := sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "b"}))
	require.NoError(t, err)

	deletion, err := sched.store.Register(task.NewTaskDeletion(task.TaskDeletion{
		Query: "*", Tasks: bitmap.New(terminal.UID, stillEnqueued.UID),
	}))
	require.NoError(t, err)

	delBatch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, delBatch)
	assert.Equal(t, shapeControl, delBatch.Shape)
	require.NoError(t, sched.exec.Execute(delBatch, sched.stop))

	removed, err := sched.store.Get(terminal.UID)
	require.NoError(t, err)
	assert.Nil(t, removed)

	stillThere, err := sched.store.Get(stillEnqueued.UID)
	require.NoError(t, err)
	require.NotNil(t, stillThere)
	assert.Equal(t, task.StatusEnqueued, stillThere.Status)

	doneDeletion, err := sched.store.Get(deletion.UID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, doneDeletion.Status)
	assert.Equal(t, uint64(1), *doneDeletion.Details.TaskDeletion.DeletedTasks)
}

func TestExecuteIndexSwapRewritesAbsorbedTasks(t *testing.T) {
	sched := newTestScheduler(t)
	_, err := sched.mapper.Create("a", "id")
	require.NoError(t, err)
	_, err = sched.mapper.Create("b", "id")
	require.NoError(t, err)

	cleared, err := sched.store.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)

	clearBatch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, clearBatch)
	require.NoError(t, sched.exec.Execute(clearBatch, sched.stop))

	before, err := sched.store.Get(cleared.UID)
	require.NoError(t, err)
	require.Equal(t, task.StatusSucceeded, before.Status)
	require.NotNil(t, before.StartedAt)
	require.NotNil(t, before.FinishedAt)

	_, err = sched.store.Register(task.NewIndexSwap(task.IndexSwap{Swaps: []task.IndexSwapPair{{LHS: "a", RHS: "b"}}}))
	require.NoError(t, err)

	batch, err := sched.selectBatch()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, ShapeIndexSwap, batch.Shape)
	require.Len(t, batch.Tasks, 2)
	require.NoError(t, sched.exec.Execute(batch, sched.stop))

	rewritten, err := sched.store.Get(cleared.UID)
	require.NoError(t, err)
	assert.Equal(t, "b", rewritten.Kind.DocumentClear.IndexUID)
	assert.Equal(t, task.StatusSucceeded, rewritten.Status)
	require.NotNil(t, rewritten.StartedAt)
	require.NotNil(t, rewritten.FinishedAt)
	assert.True(t, before.StartedAt.Equal(*rewritten.StartedAt))
	assert.True(t, before.FinishedAt.Equal(*rewritten.FinishedAt))
}
