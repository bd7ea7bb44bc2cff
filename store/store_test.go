package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterAssignsDenseUIDs(t *testing.T) {
	s := openStore(t)

	t0, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "books"}))
	require.NoError(t, err)
	t1, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "books"}))
	require.NoError(t, err)

	assert.Equal(t, uint32(0), t0.UID)
	assert.Equal(t, uint32(1), t1.UID)
	assert.Equal(t, task.StatusEnqueued, t0.Status)
}

func TestRegisterRejectsInvalidKind(t *testing.T) {
	s := openStore(t)
	_, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: ""}))
	require.Error(t, err)
	te, ok := err.(*task.Error)
	require.True(t, ok)
	assert.Equal(t, task.CategoryInvalidRequest, te.Category)
}

func TestGetRoundTrips(t *testing.T) {
	s := openStore(t)
	created, err := s.Register(task.NewIndexCreation(task.IndexCreation{IndexUID: "movies", PrimaryKey: "id"}))
	require.NoError(t, err)

	got, err := s.Get(created.UID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "movies", got.Kind.IndexCreation.IndexUID)
	assert.Equal(t, "id", got.Kind.IndexCreation.PrimaryKey)
}

func TestQueryByStatusAndKind(t *testing.T) {
	s := openStore(t)
	clearTask, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	_, err = s.Register(task.NewIndexCreation(task.IndexCreation{IndexUID: "b"}))
	require.NoError(t, err)

	matches, err := s.Query(store.Filter{Kinds: []task.KindTag{task.KindDocumentClear}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{clearTask.UID}, matches.ToArray())

	matches, err = s.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued}})
	require.NoError(t, err)
	assert.Len(t, matches.ToArray(), 2)
}

func TestQueryByIndex(t *testing.T) {
	s := openStore(t)
	a1, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	_, err = s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "b"}))
	require.NoError(t, err)

	matches, err := s.Query(store.Filter{Indexes: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{a1.UID}, matches.ToArray())
}

func TestUpdateReconcilesStatusBitmap(t *testing.T) {
	s := openStore(t)
	created, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)

	updated := created.Clone()
	finished := time.Now().UTC()
	updated.FinishedAt = &finished
	updated.Status = task.StatusSucceeded

	s.BeginWrite()
	require.NoError(t, s.Update(updated))
	require.NoError(t, s.CommitWrite())

	enqueued, err := s.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued}})
	require.NoError(t, err)
	assert.True(t, enqueued.IsEmpty())

	succeeded, err := s.Query(store.Filter{Statuses: []task.Status{task.StatusSucceeded}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{created.UID}, succeeded.ToArray())
}

func TestUpdateRejectsEnqueuedAtChange(t *testing.T) {
	s := openStore(t)
	created, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)

	mutated := created.Clone()
	mutated.EnqueuedAt = mutated.EnqueuedAt.Add(time.Hour)

	s.BeginWrite()
	err = s.Update(mutated)
	s.Rollback()
	require.Error(t, err)
}

func TestRemoveDeletesRecordAndMemberships(t *testing.T) {
	s := openStore(t)
	created, err := s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)

	s.BeginWrite()
	require.NoError(t, s.Remove(created))
	require.NoError(t, s.CommitWrite())

	got, err := s.Get(created.UID)
	require.NoError(t, err)
	assert.Nil(t, got)

	matches, err := s.Query(store.Filter{Indexes: []string{"a"}})
	require.NoError(t, err)
	assert.True(t, matches.IsEmpty())
}

func TestOpenRecomputesNextUID(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	_, err = s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	_, err = s.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	next, err := reopened.Register(task.NewDocumentClear(task.DocumentClear{IndexUID: "a"}))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), next.UID)
}
