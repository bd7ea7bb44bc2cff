// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package scheduler

import (
	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

// selectBatch implements the strict priority order: task cancelation,
// then task deletion, then snapshots, then dump creation, then the oldest
// enqueued data task. It returns nil, nil when there is nothing to do and
// the loop should idle until signaled.
func (s *Scheduler) selectBatch() (*Batch, error) {
	if b, err := s.selectNewestEnqueued(task.KindTaskCancelation, true); b != nil || err != nil {
		return b, err
	}
	if b, err := s.selectNewestEnqueued(task.KindTaskDeletion, false); b != nil || err != nil {
		return b, err
	}
	if b, err := s.selectSnapshots(); b != nil || err != nil {
		return b, err
	}
	if b, err := s.selectNewestEnqueued(task.KindDumpCreation, false); b != nil || err != nil {
		return b, err
	}
	return s.selectDataBatch()
}

// selectNewestEnqueued picks the single enqueued task of kind, at the
// maximum uid if newest is true (TaskCancelation: LIFO so a later
// "cancel-all" subsumes earlier cancels) or the minimum uid otherwise
// (TaskDeletion, DumpCreation: oldest first).
func (s *Scheduler) selectNewestEnqueued(kind task.KindTag, newest bool) (*Batch, error) {
	matches, err := s.store.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued}, Kinds: []task.KindTag{kind}})
	if err != nil {
		return nil, err
	}
	if matches.IsEmpty() {
		return nil, nil
	}
	uid := matches.Minimum()
	if newest {
		uid = matches.Maximum()
	}
	t, err := s.store.Get(uid)
	if err != nil {
		return nil, err
	}
	return &Batch{Shape: shapeControl, Tasks: []*task.Task{t}}, nil
}

func (s *Scheduler) selectSnapshots() (*Batch, error) {
	matches, err := s.store.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued}, Kinds: []task.KindTag{task.KindSnapshot}})
	if err != nil {
		return nil, err
	}
	if matches.IsEmpty() {
		return nil, nil
	}
	tasks, err := s.store.GetManyBitmap(matches)
	if err != nil {
		return nil, err
	}
	return &Batch{Shape: shapeControl, Tasks: tasks}, nil
}

// selectDataBatch implements priority step 5: pick the oldest enqueued
// task overall (among the data-task kinds and the index-lifecycle kinds
// the autobatcher also understands), gather every enqueued task for the
// same index in uid order, and hand them to the autobatcher.
func (s *Scheduler) selectDataBatch() (*Batch, error) {
	excluded := []task.KindTag{task.KindTaskCancelation, task.KindTaskDeletion, task.KindSnapshot, task.KindDumpCreation}
	candidateKinds := make([]task.KindTag, 0, len(task.AllKinds)-len(excluded))
	for _, k := range task.AllKinds {
		skip := false
		for _, e := range excluded {
			if k == e {
				skip = true
				break
			}
		}
		if !skip {
			candidateKinds = append(candidateKinds, k)
		}
	}

	candidates, err := s.store.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued}, Kinds: candidateKinds})
	if err != nil {
		return nil, err
	}
	if candidates.IsEmpty() {
		return nil, nil
	}

	oldest, err := s.store.Get(candidates.Minimum())
	if err != nil {
		return nil, err
	}
	if oldest.Kind.Tag == task.KindIndexSwap {
		return s.buildIndexSwapBatch(oldest)
	}

	indexUIDs := oldest.IndexUIDs()
	if len(indexUIDs) == 0 {
		// Shouldn't happen for the candidate kinds above, but fall back to
		// a singleton batch rather than stalling the loop.
		return s.buildDescriptorBatch("", []taskIDPair{{UID: oldest.UID, Kind: oldest.Kind}})
	}
	indexUID := indexUIDs[0]

	forIndex, err := s.store.Query(store.Filter{
		Statuses: []task.Status{task.StatusEnqueued},
		Kinds:    candidateKinds,
		Indexes:  []string{indexUID},
	})
	if err != nil {
		return nil, err
	}

	var pairs []taskIDPair
	var fetchErr error
	forIndex.Iterate(func(uid uint32) bool {
		t, err := s.store.Get(uid)
		if err != nil {
			fetchErr = err
			return false
		}
		pairs = append(pairs, taskIDPair{UID: t.UID, Kind: t.Kind})
		return true
	})
	if fetchErr != nil {
		return nil, fetchErr
	}

	return s.buildDescriptorBatch(indexUID, pairs)
}

func (s *Scheduler) buildDescriptorBatch(indexUID string, pairs []taskIDPair) (*Batch, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	exists := s.mapper.Exists(indexUID)
	descriptor := Autobatch(pairs, exists, s.autobatchingEnabled)
	if descriptor == nil {
		return nil, nil
	}

	uids := descriptor.AllUIDs()
	tasks, err := s.store.GetMany(uids)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		Shape:           descriptor.Shape,
		Index:           indexUID,
		Method:          descriptor.Method,
		MustCreateIndex: descriptor.MustCreateIndex,
		PrimaryKey:      descriptor.PrimaryKey,
		Tasks:           tasks,
		ClearIDs:        descriptor.ClearIDs,
		SettingsIDs:     descriptor.SettingsIDs,
		ImportIDs:       descriptor.ImportIDs,
		DeletionIDs:     descriptor.DeletionIDs,
	}
	if descriptor.Shape == ShapeIndexSwap && len(descriptor.IDs) > 0 {
		batch.SwapID = descriptor.IDs[0]
	}
	return batch, nil
}

// buildIndexSwapBatch gathers the swap task plus every earlier
// (uid < swap task's uid) task, of any status, touching either swapped index, so
// the executor can rewrite their kind/details in the same transaction.
func (s *Scheduler) buildIndexSwapBatch(swapTask *task.Task) (*Batch, error) {
	var indexUIDs []string
	for _, pair := range swapTask.Kind.IndexSwap.Swaps {
		indexUIDs = append(indexUIDs, pair.LHS, pair.RHS)
	}

	affected, err := s.store.Query(store.Filter{Indexes: indexUIDs, UIDLessThan: uptr(swapTask.UID)})
	if err != nil {
		return nil, err
	}

	var uids []uint32
	affected.Iterate(func(uid uint32) bool {
		uids = append(uids, uid)
		return true
	})
	uids = append(uids, swapTask.UID)

	tasks, err := s.store.GetMany(uids)
	if err != nil {
		return nil, err
	}
	return &Batch{Shape: ShapeIndexSwap, Tasks: tasks, SwapID: swapTask.UID}, nil
}

func uptr(u uint32) *uint32 { return &u }
