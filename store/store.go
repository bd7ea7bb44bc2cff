// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/couchbase/task-scheduler/bitmap"
	"github.com/couchbase/task-scheduler/task"
)

// Store is the Task Store: the transactional ordered key-value store
// holding the canonical task records and the six secondary-index bitmaps.
// All writes are serialized through wmu under a single-writer discipline —
// the scheduler's executor goroutine and the registration call path share
// this one lock, exactly as a single storage manager is the sole writer of
// its underlying file.
type Store struct {
	eng *engine

	// wmu serializes every write transaction. Reads (Get/GetMany/Query) do
	// not take it: forestdb's MVCC readers see the last committed
	// snapshot independent of a concurrent writer.
	wmu sync.Mutex

	// nextUID is cached in memory and advanced under wmu; it is
	// recomputed from the AllTasks table's maximum key at Open.
	nextUID uint32
}

// Open opens (creating if necessary) the task store rooted at path.
func Open(path string) (*Store, error) {
	eng, err := openEngine(path)
	if err != nil {
		return nil, err
	}
	s := &Store{eng: eng}

	var maxUID uint32
	found := false
	err = eng.scanRange(AllTasks, nil, nil, func(key, _ []byte) bool {
		uid := decodeUidKey(key)
		if !found || uid > maxUID {
			maxUID = uid
			found = true
		}
		return true
	})
	if err != nil {
		eng.close()
		return nil, err
	}
	if found {
		s.nextUID = maxUID + 1
	}
	return s, nil
}

func (s *Store) Close() error { return s.eng.close() }

// Register allocates the next uid, writes the task, and reconciles every
// secondary index in one transaction.
func (s *Store) Register(kind task.Kind) (*task.Task, error) {
	if err := validateKind(kind); err != nil {
		return nil, task.InvalidRequest(err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	t := &task.Task{
		UID:        s.nextUID,
		EnqueuedAt: time.Now().UTC(),
		Status:     task.StatusEnqueued,
		Kind:       kind,
		Details:    task.SeedDetails(kind),
	}

	if err := s.writeNewTask(t); err != nil {
		return nil, err
	}
	if err := s.eng.commit(); err != nil {
		return nil, task.CorruptedTaskQueue(err)
	}
	s.nextUID++
	return t, nil
}

// writeNewTask stages (without committing) the AllTasks record and every
// secondary-index membership addition for a brand-new task.
func (s *Store) writeNewTask(t *task.Task) error {
	data, err := encodeTask(t)
	if err != nil {
		return errors.Wrap(err, "encoding task")
	}
	if err := s.eng.set(AllTasks, uidKey(t.UID), data); err != nil {
		return err
	}
	if err := s.addToBitmap(Status, statusKey(t.Status), t.UID); err != nil {
		return err
	}
	if err := s.addToBitmap(Kind, kindKey(t.Kind.Tag), t.UID); err != nil {
		return err
	}
	for _, idx := range t.IndexUIDs() {
		if err := s.addToBitmap(IndexTasks, []byte(idx), t.UID); err != nil {
			return err
		}
	}
	if err := s.addToBitmap(EnqueuedAt, timeKey(t.EnqueuedAt.UnixNano()), t.UID); err != nil {
		return err
	}
	return nil
}

// Get reads one task by uid from the last committed snapshot.
func (s *Store) Get(uid uint32) (*task.Task, error) {
	data, ok, err := s.eng.get(AllTasks, uidKey(uid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeTask(data)
}

// GetMany reads every uid in uids; a missing entry is a CorruptedTaskQueue
// error (the uid appeared in a bitmap we trust, so its record must exist).
func (s *Store) GetMany(uids []uint32) ([]*task.Task, error) {
	out := make([]*task.Task, 0, len(uids))
	for _, uid := range uids {
		t, err := s.Get(uid)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, task.CorruptedTaskQueue(fmt.Errorf("task %d referenced by an index but missing from all_tasks", uid))
		}
		out = append(out, t)
	}
	return out, nil
}

// GetManyBitmap is a convenience wrapper around GetMany for a bitmap
// result, returned in ascending uid order.
func (s *Store) GetManyBitmap(uids *bitmap.Bitmap) ([]*task.Task, error) {
	if uids == nil {
		return nil, nil
	}
	return s.GetMany(uids.ToArray())
}

// Update rewrites a task, asserting uid/enqueued_at are unchanged and that
// started_at/finished_at are only ever set once, then reconciles the
// status and timestamp secondary indexes by diffing against the previous
// record. Callers batch several Update calls inside a single caller-held
// transaction by calling BeginWrite/CommitWrite around them (see batch
// executor).
func (s *Store) Update(t *task.Task) error {
	old, err := s.Get(t.UID)
	if err != nil {
		return err
	}
	if old == nil {
		return task.CorruptedTaskQueue(fmt.Errorf("update of missing task %d", t.UID))
	}
	if !old.EnqueuedAt.Equal(t.EnqueuedAt) {
		return task.CorruptedTaskQueue(fmt.Errorf("task %d: enqueued_at must not change", t.UID))
	}
	if old.StartedAt != nil && t.StartedAt != nil && !old.StartedAt.Equal(*t.StartedAt) {
		return task.CorruptedTaskQueue(fmt.Errorf("task %d: started_at is not monotonic", t.UID))
	}
	if old.FinishedAt != nil && t.FinishedAt != nil && !old.FinishedAt.Equal(*t.FinishedAt) {
		return task.CorruptedTaskQueue(fmt.Errorf("task %d: finished_at is not monotonic", t.UID))
	}

	if old.Status != t.Status {
		if err := s.removeFromBitmap(Status, statusKey(old.Status), t.UID); err != nil {
			return err
		}
		if err := s.addToBitmap(Status, statusKey(t.Status), t.UID); err != nil {
			return err
		}
	}
	if old.StartedAt == nil && t.StartedAt != nil {
		if err := s.addToBitmap(StartedAt, timeKey(t.StartedAt.UnixNano()), t.UID); err != nil {
			return err
		}
	}
	if old.FinishedAt == nil && t.FinishedAt != nil {
		if err := s.addToBitmap(FinishedAt, timeKey(t.FinishedAt.UnixNano()), t.UID); err != nil {
			return err
		}
	}
	if !sameIndexUIDs(old.IndexUIDs(), t.IndexUIDs()) {
		for _, idx := range old.IndexUIDs() {
			if err := s.removeFromBitmap(IndexTasks, []byte(idx), t.UID); err != nil {
				return err
			}
		}
		for _, idx := range t.IndexUIDs() {
			if err := s.addToBitmap(IndexTasks, []byte(idx), t.UID); err != nil {
				return err
			}
		}
	}
	if old.Kind.Tag != t.Kind.Tag {
		if err := s.removeFromBitmap(Kind, kindKey(old.Kind.Tag), t.UID); err != nil {
			return err
		}
		if err := s.addToBitmap(Kind, kindKey(t.Kind.Tag), t.UID); err != nil {
			return err
		}
	}

	data, err := encodeTask(t)
	if err != nil {
		return errors.Wrap(err, "encoding task")
	}
	return s.eng.set(AllTasks, uidKey(t.UID), data)
}

// Remove deletes a task record entirely along with every secondary-index
// membership it held — only valid for a terminal task (enforced by the
// batch executor's TaskDeletion handling, not by Remove itself, since
// Remove operates inside an already-filtered batch).
func (s *Store) Remove(t *task.Task) error {
	if err := s.removeFromBitmap(Status, statusKey(t.Status), t.UID); err != nil {
		return err
	}
	if err := s.removeFromBitmap(Kind, kindKey(t.Kind.Tag), t.UID); err != nil {
		return err
	}
	for _, idx := range t.IndexUIDs() {
		if err := s.removeFromBitmap(IndexTasks, []byte(idx), t.UID); err != nil {
			return err
		}
	}
	if err := s.removeFromBitmap(EnqueuedAt, timeKey(t.EnqueuedAt.UnixNano()), t.UID); err != nil {
		return err
	}
	if t.StartedAt != nil {
		if err := s.removeFromBitmap(StartedAt, timeKey(t.StartedAt.UnixNano()), t.UID); err != nil {
			return err
		}
	}
	if t.FinishedAt != nil {
		if err := s.removeFromBitmap(FinishedAt, timeKey(t.FinishedAt.UnixNano()), t.UID); err != nil {
			return err
		}
	}
	return s.eng.delete(AllTasks, uidKey(t.UID))
}

// BeginWrite/CommitWrite let the batch executor group several Update/Remove
// calls plus bitmap reconciliation into one durable transaction, so writes
// within a batch commit atomically. BeginWrite must be matched by exactly
// one CommitWrite or Rollback.
func (s *Store) BeginWrite() { s.wmu.Lock() }

func (s *Store) CommitWrite() error {
	defer s.wmu.Unlock()
	if err := s.eng.commit(); err != nil {
		return task.CorruptedTaskQueue(err)
	}
	return nil
}

// Rollback releases the write lock without committing. forestdb discards
// uncommitted KVStore mutations implicitly on the next Commit boundary
// rather than on an explicit abort call, so Rollback's job here is purely
// to stop issuing further writes and to let the caller re-read the last
// committed state instead of its in-memory working copy.
func (s *Store) Rollback() { s.wmu.Unlock() }

func (s *Store) readBitmap(table string, key []byte) (*bitmap.Bitmap, error) {
	data, ok, err := s.eng.get(table, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return bitmap.New(), nil
	}
	return decodeBitmap(data)
}

func (s *Store) addToBitmap(table string, key []byte, uid uint32) error {
	b, err := s.readBitmap(table, key)
	if err != nil {
		return err
	}
	b.Add(uid)
	data, err := encodeBitmap(b)
	if err != nil {
		return err
	}
	return s.eng.set(table, key, data)
}

func (s *Store) removeFromBitmap(table string, key []byte, uid uint32) error {
	b, err := s.readBitmap(table, key)
	if err != nil {
		return err
	}
	b.Remove(uid)
	if b.IsEmpty() {
		return s.eng.delete(table, key)
	}
	data, err := encodeBitmap(b)
	if err != nil {
		return err
	}
	return s.eng.set(table, key, data)
}

func sameIndexUIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Query returns the bitmap over all_tasks intersected with every provided
// facet of filter.
func (s *Store) Query(filter Filter) (*bitmap.Bitmap, error) {
	if filter.isEmpty() {
		return s.allTasksBitmap()
	}

	result, err := s.allTasksBitmap()
	if err != nil {
		return nil, err
	}

	if len(filter.Statuses) > 0 {
		b, err := s.bitmapsForStatuses(filter.Statuses)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if len(filter.Kinds) > 0 {
		b, err := s.bitmapsForKinds(filter.Kinds)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if len(filter.Indexes) > 0 {
		b, err := s.bitmapsForIndexes(filter.Indexes)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if filter.Enqueued != (TimeRange{}) {
		b, err := s.rangeBitmap(EnqueuedAt, filter.Enqueued)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if filter.Started != (TimeRange{}) {
		b, err := s.rangeBitmap(StartedAt, filter.Started)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if filter.Finished != (TimeRange{}) {
		b, err := s.rangeBitmap(FinishedAt, filter.Finished)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if filter.UIDGreaterThan != nil || filter.UIDLessThan != nil {
		b, err := s.uidRangeBitmap(filter.UIDGreaterThan, filter.UIDLessThan)
		if err != nil {
			return nil, err
		}
		result = result.And(b)
	}
	if len(filter.CanceledBy) > 0 {
		allowed := make(map[uint32]bool, len(filter.CanceledBy))
		for _, c := range filter.CanceledBy {
			allowed[c] = true
		}
		filtered := bitmap.New()
		tasks, err := s.GetManyBitmap(result)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if t.CanceledBy != nil && allowed[*t.CanceledBy] {
				filtered.Add(t.UID)
			}
		}
		result = filtered
	}
	return result, nil
}

func (s *Store) allTasksBitmap() (*bitmap.Bitmap, error) {
	result := bitmap.New()
	err := s.eng.scanRange(AllTasks, nil, nil, func(key, _ []byte) bool {
		result.Add(decodeUidKey(key))
		return true
	})
	return result, err
}
