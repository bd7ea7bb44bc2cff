package content_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/task-scheduler/content"
)

func TestWriteAndReadDocumentsRoundTrip(t *testing.T) {
	s, err := content.Open(t.TempDir())
	require.NoError(t, err)

	id, w, err := s.NewWriter()
	require.NoError(t, err)

	docs := []content.Document{
		{"id": "1", "title": "one"},
		{"id": "2", "title": "two"},
	}
	for _, d := range docs {
		require.NoError(t, content.WriteDocument(w, d))
	}
	require.NoError(t, w.Close())

	r, err := s.GetUpdate(id)
	require.NoError(t, err)
	defer r.Close()

	var got []content.Document
	err = content.ReadDocuments(r, func(d content.Document) (bool, error) {
		got = append(got, d)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1", got[0]["id"])
	assert.Equal(t, "2", got[1]["id"])
}

func TestReadDocumentsStopsEarly(t *testing.T) {
	s, err := content.Open(t.TempDir())
	require.NoError(t, err)
	id, w, err := s.NewWriter()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, content.WriteDocument(w, content.Document{"n": i}))
	}
	require.NoError(t, w.Close())

	r, err := s.GetUpdate(id)
	require.NoError(t, err)
	defer r.Close()

	var seen int
	err = content.ReadDocuments(r, func(d content.Document) (bool, error) {
		seen++
		return seen < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
}

func TestGetUpdateMissingFile(t *testing.T) {
	s, err := content.Open(t.TempDir())
	require.NoError(t, err)
	_, err = s.GetUpdate("nonexistent")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDeleteToleratesAlreadyAbsent(t *testing.T) {
	s, err := content.Open(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, s.Delete("nonexistent"))
}

func TestDeleteRemovesFile(t *testing.T) {
	s, err := content.Open(t.TempDir())
	require.NoError(t, err)
	id, w, err := s.NewWriter()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, s.Delete(id))
	_, err = s.GetUpdate(id)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
