package indexmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/indexmap"
	"github.com/couchbase/task-scheduler/task"
)

func TestCreateRejectsDuplicate(t *testing.T) {
	m := indexmap.New()
	_, err := m.Create("books", "id")
	require.NoError(t, err)

	_, err = m.Create("books", "id")
	require.Error(t, err)
	assert.Equal(t, task.CategoryIndexAlreadyExists, err.(*task.Error).Category)
}

func TestOpenWithoutCreateReturnsNotFound(t *testing.T) {
	m := indexmap.New()
	_, err := m.Open("missing", false)
	require.Error(t, err)
	assert.Equal(t, task.CategoryIndexNotFound, err.(*task.Error).Category)
}

func TestOpenWithCreateMakesIndex(t *testing.T) {
	m := indexmap.New()
	ix, err := m.Open("books", true)
	require.NoError(t, err)
	assert.True(t, m.Exists("books"))
	assert.Equal(t, uint64(0), ix.NumberOfDocuments())
}

func TestDeleteReturnsDocumentCount(t *testing.T) {
	m := indexmap.New()
	ix, err := m.Create("books", "id")
	require.NoError(t, err)
	_, err = ix.AddDocuments([]content.Document{{"id": "a"}, {"id": "b"}}, task.ReplaceDocuments)
	require.NoError(t, err)

	count, err := m.Delete("books")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	assert.False(t, m.Exists("books"))
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	m := indexmap.New()
	_, err := m.Delete("missing")
	require.Error(t, err)
	assert.Equal(t, task.CategoryIndexNotFound, err.(*task.Error).Category)
}

func TestSwapExchangesContent(t *testing.T) {
	m := indexmap.New()
	a, err := m.Create("a", "id")
	require.NoError(t, err)
	_, err = a.AddDocuments([]content.Document{{"id": "1"}}, task.ReplaceDocuments)
	require.NoError(t, err)
	_, err = m.Create("b", "id")
	require.NoError(t, err)

	require.NoError(t, m.Swap("a", "b"))

	bNow, err := m.Open("b", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bNow.NumberOfDocuments())

	aNow, err := m.Open("a", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), aNow.NumberOfDocuments())
}

func TestSwapWithMissingIndexCreatesIt(t *testing.T) {
	m := indexmap.New()
	_, err := m.Create("a", "id")
	require.NoError(t, err)

	require.NoError(t, m.Swap("a", "b"))
	assert.True(t, m.Exists("a"))
	assert.True(t, m.Exists("b"))
}

func TestNumberOfDocumentsUnknownIndex(t *testing.T) {
	m := indexmap.New()
	count, ok := m.NumberOfDocuments("missing")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), count)
}
