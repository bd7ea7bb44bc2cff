package indexmap

import (
	"sync"

	"github.com/couchbase/task-scheduler/task"
)

// Mapper owns the registry of named indexes. It is the single collaborator
// the executor talks to for every index-shaped operation; swapping it for a
// client of a real search engine later only touches this package.
type Mapper struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

func New() *Mapper {
	return &Mapper{indexes: map[string]*Index{}}
}

func (m *Mapper) Exists(uid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indexes[uid]
	return ok
}

// Create makes a new, empty index. Returns task.IndexAlreadyExists if uid is
// already taken.
func (m *Mapper) Create(uid, primaryKey string) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[uid]; ok {
		return nil, task.IndexAlreadyExists(uid)
	}
	ix := newIndex(uid)
	if primaryKey != "" {
		ix.primaryKey = primaryKey
	}
	m.indexes[uid] = ix
	return ix, nil
}

// Open returns the index, creating it first if create is true and it does
// not exist yet, or returns task.IndexNotFound otherwise.
func (m *Mapper) Open(uid string, create bool) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ix, ok := m.indexes[uid]; ok {
		return ix, nil
	}
	if !create {
		return nil, task.IndexNotFound(uid)
	}
	ix := newIndex(uid)
	m.indexes[uid] = ix
	return ix, nil
}

// Delete removes an index and returns the number of documents it held, so
// the caller can record IndexDeletionDetails.DeletedDocuments without a
// second pass.
func (m *Mapper) Delete(uid string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ix, ok := m.indexes[uid]
	if !ok {
		return 0, task.IndexNotFound(uid)
	}
	delete(m.indexes, uid)
	return ix.NumberOfDocuments(), nil
}

// Swap exchanges the named indexes under lhs and rhs, so that future lookups
// of lhs resolve to what used to be stored at rhs and vice versa. Missing
// indexes are treated as empty: swapping with a nonexistent name creates it.
func (m *Mapper) Swap(lhs, rhs string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	left, leftOK := m.indexes[lhs]
	right, rightOK := m.indexes[rhs]
	if !leftOK {
		left = newIndex(rhs)
	}
	if !rightOK {
		right = newIndex(lhs)
	}
	left.uid, right.uid = rhs, lhs
	m.indexes[lhs] = right
	m.indexes[rhs] = left
	return nil
}

// NumberOfDocuments reports 0, false for an unknown index rather than
// erroring: callers use this only for best-effort document-count tracking,
// never as an existence check.
func (m *Mapper) NumberOfDocuments(uid string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ix, ok := m.indexes[uid]
	if !ok {
		return 0, false
	}
	return ix.NumberOfDocuments(), true
}
