// Package indexmap implements the Index Mapper external collaborator:
// opening, creating, deleting and swapping named indexes, plus a minimal
// in-process indexing engine stand-in that is sufficient to exercise every
// batch shape the scheduler can produce (document add/update/delete/clear,
// settings application, primary-key assignment, per-index document-count
// tracking). The real indexing/search engine sits behind this same
// interface; this package is an in-memory stand-in for it, in the spirit of
// an in-memory slab/memdb test double used to exercise a storage layer
// without a live cluster.
package indexmap

import (
	"fmt"
	"sync"

	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/task"
)

// Index is one named index's mutable state: documents keyed by primary key
// value, plus settings and the declared primary key field name.
type Index struct {
	mu sync.RWMutex

	uid        string
	primaryKey string
	settings   map[string]interface{}
	documents  map[string]content.Document
}

func newIndex(uid string) *Index {
	return &Index{uid: uid, settings: map[string]interface{}{}, documents: map[string]content.Document{}}
}

func (ix *Index) PrimaryKey() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.primaryKey
}

func (ix *Index) NumberOfDocuments() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return uint64(len(ix.documents))
}

// ClearPrimaryKey unconditionally unsets the primary key, used to roll back
// a SetPrimaryKey when every document of the import that declared it
// failed to index.
func (ix *Index) ClearPrimaryKey() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.primaryKey = ""
}

// SetPrimaryKey assigns the index's primary key field, once. Returns false
// if a different primary key is already set.
func (ix *Index) SetPrimaryKey(pk string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.primaryKey == "" {
		ix.primaryKey = pk
		return true
	}
	return ix.primaryKey == pk
}

// AddDocuments indexes every document read from docs under the given
// replication method, inferring a primary key from the first document if
// none is set yet. Returns the count of documents actually indexed.
func (ix *Index) AddDocuments(docs []content.Document, method task.ReplicationMethod) (uint64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var indexed uint64
	for _, doc := range docs {
		pk := ix.primaryKey
		if pk == "" {
			pk = inferPrimaryKey(doc)
			if pk == "" {
				continue
			}
			ix.primaryKey = pk
		}
		id, ok := documentID(doc, pk)
		if !ok {
			continue
		}
		if method == task.UpdateDocuments {
			if existing, found := ix.documents[id]; found {
				merged := content.Document{}
				for k, v := range existing {
					merged[k] = v
				}
				for k, v := range doc {
					merged[k] = v
				}
				doc = merged
			}
		}
		ix.documents[id] = doc
		indexed++
	}
	return indexed, nil
}

// Document returns the indexed document for the given primary key value, if
// present.
func (ix *Index) Document(id string) (content.Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.documents[id]
	return doc, ok
}

// DeleteDocuments removes documents by primary key value. Returns the count
// actually removed.
func (ix *Index) DeleteDocuments(ids []string) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var deleted uint64
	for _, id := range ids {
		if _, ok := ix.documents[id]; ok {
			delete(ix.documents, id)
			deleted++
		}
	}
	return deleted
}

// Clear removes every document, returning the count removed.
func (ix *Index) Clear() uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := uint64(len(ix.documents))
	ix.documents = map[string]content.Document{}
	return n
}

// ApplySettings merges (or, if isDeletion, unsets the named keys of) the
// given settings into the index's current settings.
func (ix *Index) ApplySettings(newSettings map[string]interface{}, isDeletion bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if isDeletion {
		for k := range newSettings {
			delete(ix.settings, k)
		}
		return
	}
	for k, v := range newSettings {
		ix.settings[k] = v
	}
}

func (ix *Index) Settings() map[string]interface{} {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]interface{}, len(ix.settings))
	for k, v := range ix.settings {
		out[k] = v
	}
	return out
}

func inferPrimaryKey(doc content.Document) string {
	for _, candidate := range []string{"id", "uid", "_id"} {
		if _, ok := doc[candidate]; ok {
			return candidate
		}
	}
	for k := range doc {
		return k
	}
	return ""
}

func documentID(doc content.Document, pk string) (string, bool) {
	v, ok := doc[pk]
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, true
	case nil:
		return "", false
	default:
		return fmt.Sprint(id), true
	}
}
