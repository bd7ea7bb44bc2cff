package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/task-scheduler/task"
)

func pair(uid uint32, k task.Kind) taskIDPair { return taskIDPair{UID: uid, Kind: k} }

func addition(indexUID string, method task.ReplicationMethod, pk string) task.Kind {
	return task.NewDocumentAdditionOrUpdate(task.DocumentAdditionOrUpdate{
		IndexUID: indexUID, Method: method, PrimaryKey: pk, ContentFile: "f",
	})
}

// Two plain document additions on an existing index merge into one import
// batch carrying both uids.
func TestAutobatchMergesConsecutiveAdditions(t *testing.T) {
	pairs := []taskIDPair{
		pair(1, addition("books", task.ReplaceDocuments, "")),
		pair(2, addition("books", task.ReplaceDocuments, "")),
	}
	d := Autobatch(pairs, true, true)
	require.NotNil(t, d)
	assert.Equal(t, ShapeDocumentImport, d.Shape)
	assert.Equal(t, []uint32{1, 2}, d.ImportIDs)
	assert.False(t, d.MustCreateIndex)
}

// IndexCreation followed by a run of additions merges into one document
// import batch with MustCreateIndex set and the creation's primary key
// carried forward.
func TestAutobatchIndexCreationThenAdditionMerges(t *testing.T) {
	pairs := []taskIDPair{
		pair(1, task.NewIndexCreation(task.IndexCreation{IndexUID: "books", PrimaryKey: "id"})),
		pair(2, addition("books", task.ReplaceDocuments, "")),
		pair(3, addition("books", task.ReplaceDocuments, "")),
	}
	d := Autobatch(pairs, false, true)
	require.NotNil(t, d)
	assert.Equal(t, ShapeDocumentImport, d.Shape)
	assert.Equal(t, []uint32{2, 3}, d.ImportIDs)
	assert.True(t, d.MustCreateIndex)
	assert.Equal(t, "id", d.PrimaryKey)
}

// Five additions, then a deletion, then two more additions: the deletion
// absorbs everything before it into one IndexDeletion-shaped batch, and the
// trailing additions are left for the next selection round (not part of
// this descriptor at all, since dataMerge stops at the first IndexDeletion).
func TestAutobatchDeletionAbsorbsPriorRun(t *testing.T) {
	var pairs []taskIDPair
	for i := uint32(1); i <= 5; i++ {
		pairs = append(pairs, pair(i, addition("books", task.ReplaceDocuments, "")))
	}
	pairs = append(pairs, pair(6, task.NewIndexDeletion(task.IndexDeletion{IndexUID: "books"})))
	pairs = append(pairs, pair(7, addition("books", task.ReplaceDocuments, "")))
	pairs = append(pairs, pair(8, addition("books", task.ReplaceDocuments, "")))

	d := Autobatch(pairs, true, true)
	require.NotNil(t, d)
	assert.Equal(t, ShapeIndexDeletion, d.Shape)
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, d.IDs)
}

// An incompatible primary key on a later addition stops the merge run
// before that task.
func TestAutobatchStopsOnIncompatiblePrimaryKey(t *testing.T) {
	pairs := []taskIDPair{
		pair(1, addition("books", task.ReplaceDocuments, "id")),
		pair(2, addition("books", task.ReplaceDocuments, "uid")),
	}
	d := Autobatch(pairs, true, true)
	require.NotNil(t, d)
	assert.Equal(t, []uint32{1}, d.ImportIDs)
}

// A settings update followed by an import produces the combined
// settings-and-import shape, keeping both id lists distinct.
func TestAutobatchSettingsThenImportMerges(t *testing.T) {
	pairs := []taskIDPair{
		pair(1, task.NewSettingsUpdate(task.SettingsUpdate{IndexUID: "books", NewSettings: map[string]interface{}{"a": 1}})),
		pair(2, addition("books", task.ReplaceDocuments, "")),
	}
	d := Autobatch(pairs, true, true)
	require.NotNil(t, d)
	assert.Equal(t, ShapeSettingsAndDocumentImport, d.Shape)
	assert.Equal(t, []uint32{1}, d.SettingsIDs)
	assert.Equal(t, []uint32{2}, d.ImportIDs)
}

// IndexSwap and IndexUpdate are always singleton batches regardless of what
// follows.
func TestAutobatchIndexSwapAndUpdateAreSingletons(t *testing.T) {
	swapPairs := []taskIDPair{pair(1, task.NewIndexSwap(task.IndexSwap{Swaps: []task.IndexSwapPair{{LHS: "a", RHS: "b"}}}))}
	d := Autobatch(swapPairs, true, true)
	require.NotNil(t, d)
	assert.Equal(t, ShapeIndexSwap, d.Shape)
	assert.Equal(t, []uint32{1}, d.IDs)

	updatePairs := []taskIDPair{pair(1, task.NewIndexUpdate(task.IndexUpdate{IndexUID: "a", PrimaryKey: "id"}))}
	d = Autobatch(updatePairs, true, true)
	require.NotNil(t, d)
	assert.Equal(t, ShapeIndexUpdate, d.Shape)
}

// With autobatching disabled, every call returns a singleton batch even
// when several same-kind tasks are queued.
func TestAutobatchDisabledProducesSingletons(t *testing.T) {
	pairs := []taskIDPair{
		pair(1, addition("books", task.ReplaceDocuments, "")),
		pair(2, addition("books", task.ReplaceDocuments, "")),
	}
	d := Autobatch(pairs, true, false)
	require.NotNil(t, d)
	assert.Equal(t, ShapeDocumentImport, d.Shape)
	assert.Equal(t, []uint32{1}, d.ImportIDs)
}

func TestAutobatchEmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, Autobatch(nil, true, true))
}
