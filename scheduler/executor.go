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
	"time"

	"go.uber.org/zap"

	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/indexmap"
	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

// Executor runs one Batch to completion against the task store, the content
// file store, and the index mapper. It is the only component that mutates
// task status away from Enqueued.
type Executor struct {
	store   *store.Store
	content *content.Store
	mapper  *indexmap.Mapper
	log     *zap.Logger
}

func NewExecutor(s *store.Store, c *content.Store, m *indexmap.Mapper, log *zap.Logger) *Executor {
	return &Executor{store: s, content: c, mapper: m, log: log}
}

// outcome is the per-task terminal result a shape handler computes; the
// batch's final commit step folds these into each task record. removed
// marks a task whose record is deleted outright (TaskDeletion) rather than
// updated in place. canceledBy is only set by TaskCancelation, for the
// tasks it terminates.
type outcome struct {
	status     task.Status
	details    task.Details
	err        *task.Error
	removed    bool
	canceledBy *uint32
}

// Execute runs batch, computing shape-specific outcomes for every task and
// then committing started_at/finished_at/status/details/error in one
// transaction. The outcome map can name uids beyond batch.Tasks — a
// TaskCancelation or TaskDeletion control task's outcomes cover whatever
// tasks its query matched, not just itself — so the commit loop walks
// commitTasks(), which resolves every outcome uid to a task record before
// writing any of them.
func (e *Executor) Execute(batch *Batch, stop *StopFlag) error {
	if batch == nil || len(batch.Tasks) == 0 {
		return nil
	}
	startedAt := time.Now().UTC()

	outcomes, batchErr := e.run(batch, stop)

	if stop.Requested() {
		e.log.Info("batch aborted by stop signal, tasks remain enqueued", zap.Int("tasks", len(batch.Tasks)))
		return nil
	}

	tasks, err := e.commitTasks(batch, outcomes)
	if err != nil {
		return err
	}

	e.store.BeginWrite()

	for _, t := range tasks {
		if batchErr == nil {
			if o, ok := outcomes[t.UID]; ok && o.removed {
				if err := e.store.Remove(t); err != nil {
					e.store.Rollback()
					return err
				}
				continue
			}
		}

		// A task already terminal before this batch (an IndexSwap absorbing
		// tasks gathered regardless of status) keeps its own started_at/
		// finished_at: re-stamping them would trip the store's monotonic
		// timestamp guard.
		if t.StartedAt == nil {
			started := startedAt
			t.StartedAt = &started
		}
		if t.FinishedAt == nil {
			finished := time.Now().UTC()
			t.FinishedAt = &finished
		}

		if batchErr != nil {
			t.Status = task.StatusFailed
			t.Error = batchErr
		} else if o, ok := outcomes[t.UID]; ok {
			t.Status = o.status
			t.Details = o.details
			t.Error = o.err
			if o.canceledBy != nil {
				t.CanceledBy = o.canceledBy
			}
		} else {
			t.Status = task.StatusFailed
			t.Error = task.EngineError(fmt.Errorf("no outcome computed for task %d", t.UID))
		}

		if err := e.store.Update(t); err != nil {
			e.store.Rollback()
			return err
		}
	}

	if err := e.store.CommitWrite(); err != nil {
		return err
	}

	for _, t := range tasks {
		switch t.Status {
		case task.StatusSucceeded, task.StatusFailed, task.StatusCanceled:
			if id, ok := t.ContentFileID(); ok {
				if err := e.content.Delete(id); err != nil {
					e.log.Warn("content file cleanup failed", zap.String("content_file", id), zap.Error(err))
				}
			}
		}
	}

	e.log.Info("batch committed", zap.String("shape", shapeName(batch.Shape)), zap.Int("tasks", len(tasks)))
	return nil
}

// commitTasks resolves every uid the outcome map names to a task record:
// batch.Tasks already carries the ones the batch builder gathered, but a
// control task's outcomes can reach further (TaskCancelation's survivors,
// TaskDeletion's removable set) than the single control task in batch.Tasks,
// so those are fetched from the store.
func (e *Executor) commitTasks(batch *Batch, outcomes map[uint32]outcome) ([]*task.Task, error) {
	tasks := make([]*task.Task, 0, len(outcomes))
	seen := make(map[uint32]bool, len(batch.Tasks))
	for _, t := range batch.Tasks {
		tasks = append(tasks, t)
		seen[t.UID] = true
	}
	for uid := range outcomes {
		if seen[uid] {
			continue
		}
		t, err := e.store.Get(uid)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		tasks = append(tasks, t)
		seen[uid] = true
	}
	return tasks, nil
}

// run dispatches to the shape-specific handler. A non-nil returned error
// fails every task in the batch identically (e.g. a transaction-level
// commit failure against the mapper); a nil error with a populated outcome
// map records per-task results.
func (e *Executor) run(batch *Batch, stop *StopFlag) (map[uint32]outcome, *task.Error) {
	switch batch.Shape {
	case ShapeDocumentImport:
		return e.runDocumentImport(batch, stop)
	case ShapeDocumentDeletion:
		return e.runDocumentDeletion(batch)
	case ShapeDocumentClear:
		return e.runDocumentClear(batch)
	case ShapeSettings:
		return e.runSettings(batch)
	case ShapeClearAndSettings:
		return e.runClearAndSettings(batch)
	case ShapeSettingsAndDocumentImport:
		return e.runSettingsAndImport(batch, stop)
	case ShapeIndexCreation:
		return e.runIndexCreation(batch)
	case ShapeIndexUpdate:
		return e.runIndexUpdate(batch)
	case ShapeIndexDeletion:
		return e.runIndexDeletion(batch)
	case ShapeIndexSwap:
		return e.runIndexSwap(batch)
	case shapeControl:
		return e.runControl(batch)
	default:
		return nil, task.EngineError(fmt.Errorf("unhandled batch shape %d", batch.Shape))
	}
}

func (e *Executor) openOrCreateIndex(uid string, mustCreate bool) (*indexmap.Index, error) {
	return e.mapper.Open(uid, mustCreate)
}

// runDocumentImport indexes every import task's documents in one pass,
// using an approximate per-task indexed_documents attribution: the
// aggregate indexed count is drained across tasks in batch order, capped at
// each task's own received count.
func (e *Executor) runDocumentImport(batch *Batch, stop *StopFlag) (map[uint32]outcome, *task.Error) {
	ix, err := e.openOrCreateIndex(batch.Index, batch.MustCreateIndex)
	if err != nil {
		return nil, toTaskError(err)
	}

	primaryKeyNewlySet := false
	if batch.PrimaryKey != "" && ix.PrimaryKey() == "" {
		ix.SetPrimaryKey(batch.PrimaryKey)
		primaryKeyNewlySet = true
	}

	byUID := taskByUID(batch.Tasks)
	var totalIndexed uint64
	failed := map[uint32]*task.Error{}

	for _, uid := range batch.ImportIDs {
		if stop.Requested() {
			break
		}
		t := byUID[uid]
		id, ok := t.ContentFileID()
		if !ok {
			failed[uid] = task.EngineError(fmt.Errorf("task %d has no content file", uid))
			continue
		}
		r, err := e.content.GetUpdate(id)
		if err != nil {
			failed[uid] = task.ContentFileError(err)
			continue
		}
		var docs []content.Document
		readErr := content.ReadDocuments(r, func(d content.Document) (bool, error) {
			docs = append(docs, d)
			return true, nil
		})
		r.Close()
		if readErr != nil {
			failed[uid] = task.EngineError(readErr)
			continue
		}
		n, err := ix.AddDocuments(docs, batch.Method)
		if err != nil {
			failed[uid] = task.EngineError(err)
			continue
		}
		totalIndexed += n
	}

	if len(failed) == len(batch.ImportIDs) && primaryKeyNewlySet {
		ix.ClearPrimaryKey()
	}

	out := map[uint32]outcome{}
	for _, uid := range batch.ImportIDs {
		t := byUID[uid]
		d := *t.Details.DocumentAdditionOrUpdate
		if cause, isFailed := failed[uid]; isFailed {
			out[uid] = outcome{status: task.StatusFailed, details: task.Details{DocumentAdditionOrUpdate: &d}, err: cause}
			continue
		}
		indexed := d.ReceivedDocuments
		if indexed > totalIndexed {
			indexed = totalIndexed
		}
		totalIndexed -= indexed
		d.IndexedDocuments = &indexed
		out[uid] = outcome{status: task.StatusSucceeded, details: task.Details{DocumentAdditionOrUpdate: &d}}
	}
	return out, nil
}

// runDocumentDeletion credits every task in the batch with the total
// deleted_documents count, since the deletion is not attributable per task.
func (e *Executor) runDocumentDeletion(batch *Batch) (map[uint32]outcome, *task.Error) {
	ix, err := e.openOrCreateIndex(batch.Index, batch.MustCreateIndex)
	if err != nil {
		return nil, toTaskError(err)
	}
	byUID := taskByUID(batch.Tasks)
	var allIDs []string
	for _, uid := range batch.DeletionIDs {
		allIDs = append(allIDs, byUID[uid].Kind.DocumentDeletion.DocumentIDs...)
	}
	deleted := ix.DeleteDocuments(allIDs)

	out := map[uint32]outcome{}
	for _, uid := range batch.DeletionIDs {
		d := *byUID[uid].Details.DocumentDeletion
		n := deleted
		d.DeletedDocuments = &n
		out[uid] = outcome{status: task.StatusSucceeded, details: task.Details{DocumentDeletion: &d}}
	}
	return out, nil
}

// runDocumentClear credits the first task with the full deleted count, the
// rest with zero.
func (e *Executor) runDocumentClear(batch *Batch) (map[uint32]outcome, *task.Error) {
	ix, err := e.openOrCreateIndex(batch.Index, batch.MustCreateIndex)
	if err != nil {
		return nil, toTaskError(err)
	}
	byUID := taskByUID(batch.Tasks)
	deleted := ix.Clear()

	out := map[uint32]outcome{}
	for i, uid := range batch.ClearIDs {
		d := *byUID[uid].Details.DocumentClear
		n := uint64(0)
		if i == 0 {
			n = deleted
		}
		d.DeletedDocuments = &n
		out[uid] = outcome{status: task.StatusSucceeded, details: task.Details{DocumentClear: &d}}
	}
	return out, nil
}

// runSettings applies each task's settings sequentially; no de-duplication
// across tasks in the batch yet.
func (e *Executor) runSettings(batch *Batch) (map[uint32]outcome, *task.Error) {
	ix, err := e.openOrCreateIndex(batch.Index, batch.MustCreateIndex)
	if err != nil {
		return nil, toTaskError(err)
	}
	byUID := taskByUID(batch.Tasks)
	out := map[uint32]outcome{}
	for _, uid := range batch.SettingsIDs {
		s := byUID[uid].Kind.SettingsUpdate
		ix.ApplySettings(s.NewSettings, s.IsDeletion)
		d := *byUID[uid].Details.SettingsUpdate
		out[uid] = outcome{status: task.StatusSucceeded, details: task.Details{SettingsUpdate: &d}}
	}
	return out, nil
}

func (e *Executor) runClearAndSettings(batch *Batch) (map[uint32]outcome, *task.Error) {
	clearOut, terr := e.runDocumentClear(batch)
	if terr != nil {
		return nil, terr
	}
	settingsOut, terr := e.runSettings(batch)
	if terr != nil {
		return nil, terr
	}
	out := map[uint32]outcome{}
	for k, v := range clearOut {
		out[k] = v
	}
	for k, v := range settingsOut {
		out[k] = v
	}
	return out, nil
}

func (e *Executor) runSettingsAndImport(batch *Batch, stop *StopFlag) (map[uint32]outcome, *task.Error) {
	settingsOut, terr := e.runSettings(batch)
	if terr != nil {
		return nil, terr
	}
	importOut, terr := e.runDocumentImport(batch, stop)
	if terr != nil {
		return nil, terr
	}
	out := map[uint32]outcome{}
	for k, v := range settingsOut {
		out[k] = v
	}
	for k, v := range importOut {
		out[k] = v
	}
	return out, nil
}

func (e *Executor) runIndexCreation(batch *Batch) (map[uint32]outcome, *task.Error) {
	t := batch.Tasks[0]
	c := t.Kind.IndexCreation
	if _, err := e.mapper.Create(c.IndexUID, c.PrimaryKey); err != nil {
		return map[uint32]outcome{t.UID: {status: task.StatusFailed, details: t.Details, err: toTaskError(err)}}, nil
	}
	d := task.IndexInfoDetails{PrimaryKey: c.PrimaryKey}
	return map[uint32]outcome{t.UID: {status: task.StatusSucceeded, details: task.Details{IndexInfo: &d}}}, nil
}

func (e *Executor) runIndexUpdate(batch *Batch) (map[uint32]outcome, *task.Error) {
	t := batch.Tasks[0]
	u := t.Kind.IndexUpdate
	ix, err := e.mapper.Open(u.IndexUID, false)
	if err != nil {
		return map[uint32]outcome{t.UID: {status: task.StatusFailed, details: t.Details, err: toTaskError(err)}}, nil
	}
	if u.PrimaryKey != "" {
		ix.SetPrimaryKey(u.PrimaryKey)
	}
	d := task.IndexInfoDetails{PrimaryKey: ix.PrimaryKey()}
	return map[uint32]outcome{t.UID: {status: task.StatusSucceeded, details: task.Details{IndexInfo: &d}}}, nil
}

// runIndexDeletion reads number_of_documents before deleting so the detail
// counter never requires a post-delete scan, folds the merged data tasks
// that were absorbed alongside the deletion, and tolerates IndexNotFound
// when the batch never actually created the index (must_create_index true
// means the absorbed batch would have created it on demand; if nothing ever
// ran, there is nothing to delete).
func (e *Executor) runIndexDeletion(batch *Batch) (map[uint32]outcome, *task.Error) {
	deletionTask := batch.Tasks[len(batch.Tasks)-1]
	indexUID := deletionTask.Kind.IndexDeletion.IndexUID

	docCount, existed := e.mapper.NumberOfDocuments(indexUID)
	_, err := e.mapper.Delete(indexUID)
	if err != nil && !(batch.MustCreateIndex && !existed) {
		out := map[uint32]outcome{}
		for _, t := range batch.Tasks {
			out[t.UID] = outcome{status: task.StatusFailed, details: t.Details, err: toTaskError(err)}
		}
		return out, nil
	}

	out := map[uint32]outcome{}
	for _, t := range batch.Tasks {
		if t.UID == deletionTask.UID {
			n := docCount
			out[t.UID] = outcome{status: task.StatusSucceeded, details: task.Details{IndexDeletion: &task.IndexDeletionDetails{DeletedDocuments: &n}}}
			continue
		}
		// Absorbed data tasks on a now-deleted index: their effects were
		// annihilated, so they are reported succeeded with a zeroed result
		// counter rather than failed, matching "deletion absorbs... because
		// deletion annihilates all prior effects".
		out[t.UID] = zeroedOutcome(t)
	}
	return out, nil
}

func zeroedOutcome(t *task.Task) outcome {
	zero := uint64(0)
	switch t.Kind.Tag {
	case task.KindDocumentAdditionOrUpdate:
		d := *t.Details.DocumentAdditionOrUpdate
		d.IndexedDocuments = &zero
		return outcome{status: task.StatusSucceeded, details: task.Details{DocumentAdditionOrUpdate: &d}}
	case task.KindDocumentDeletion:
		d := *t.Details.DocumentDeletion
		d.DeletedDocuments = &zero
		return outcome{status: task.StatusSucceeded, details: task.Details{DocumentDeletion: &d}}
	case task.KindDocumentClear:
		d := *t.Details.DocumentClear
		d.DeletedDocuments = &zero
		return outcome{status: task.StatusSucceeded, details: task.Details{DocumentClear: &d}}
	case task.KindSettingsUpdate:
		d := *t.Details.SettingsUpdate
		return outcome{status: task.StatusSucceeded, details: task.Details{SettingsUpdate: &d}}
	default:
		return outcome{status: task.StatusSucceeded, details: t.Details}
	}
}

// runIndexSwap rewrites every absorbed earlier task (uid < the swap task's
// uid) that referenced either swapped index, then swaps the mapper entries.
// Caller (the loop's batch builder) is responsible for gathering those
// earlier tasks into batch.Tasks alongside the swap task itself.
func (e *Executor) runIndexSwap(batch *Batch) (map[uint32]outcome, *task.Error) {
	swapTask := batch.Tasks[len(batch.Tasks)-1]
	swap := swapTask.Kind.IndexSwap

	for _, pair := range swap.Swaps {
		if !e.mapper.Exists(pair.LHS) || !e.mapper.Exists(pair.RHS) {
			out := map[uint32]outcome{}
			err := task.IndexNotFound(pair.LHS)
			if e.mapper.Exists(pair.LHS) {
				err = task.IndexNotFound(pair.RHS)
			}
			for _, t := range batch.Tasks {
				out[t.UID] = outcome{status: task.StatusFailed, details: t.Details, err: err}
			}
			return out, nil
		}
	}

	rewrite := map[string]string{}
	for _, pair := range swap.Swaps {
		rewrite[pair.LHS] = pair.RHS
		rewrite[pair.RHS] = pair.LHS
	}

	out := map[uint32]outcome{}
	for _, t := range batch.Tasks {
		if t.UID == swapTask.UID {
			continue
		}
		rewriteIndexUID(t, rewrite)
		out[t.UID] = outcome{status: t.Status, details: t.Details, err: t.Error}
	}

	for _, pair := range swap.Swaps {
		if err := e.mapper.Swap(pair.LHS, pair.RHS); err != nil {
			return nil, toTaskError(err)
		}
	}

	d := task.IndexSwapDetails{Swaps: swap.Swaps}
	out[swapTask.UID] = outcome{status: task.StatusSucceeded, details: task.Details{IndexSwap: &d}}
	return out, nil
}

// rewriteIndexUID substitutes the opposite name in place, for any kind that
// names exactly one index_uid; called only on tasks already selected
// because they reference a swapped index.
func rewriteIndexUID(t *task.Task, rewrite map[string]string) {
	switch t.Kind.Tag {
	case task.KindDocumentAdditionOrUpdate:
		if to, ok := rewrite[t.Kind.DocumentAdditionOrUpdate.IndexUID]; ok {
			t.Kind.DocumentAdditionOrUpdate.IndexUID = to
		}
	case task.KindDocumentDeletion:
		if to, ok := rewrite[t.Kind.DocumentDeletion.IndexUID]; ok {
			t.Kind.DocumentDeletion.IndexUID = to
		}
	case task.KindDocumentClear:
		if to, ok := rewrite[t.Kind.DocumentClear.IndexUID]; ok {
			t.Kind.DocumentClear.IndexUID = to
		}
	case task.KindSettingsUpdate:
		if to, ok := rewrite[t.Kind.SettingsUpdate.IndexUID]; ok {
			t.Kind.SettingsUpdate.IndexUID = to
		}
	case task.KindIndexCreation:
		if to, ok := rewrite[t.Kind.IndexCreation.IndexUID]; ok {
			t.Kind.IndexCreation.IndexUID = to
		}
	case task.KindIndexUpdate:
		if to, ok := rewrite[t.Kind.IndexUpdate.IndexUID]; ok {
			t.Kind.IndexUpdate.IndexUID = to
		}
	case task.KindIndexDeletion:
		if to, ok := rewrite[t.Kind.IndexDeletion.IndexUID]; ok {
			t.Kind.IndexDeletion.IndexUID = to
		}
	}
}

func taskByUID(tasks []*task.Task) map[uint32]*task.Task {
	m := make(map[uint32]*task.Task, len(tasks))
	for _, t := range tasks {
		m[t.UID] = t
	}
	return m
}

func toTaskError(err error) *task.Error {
	if te, ok := err.(*task.Error); ok {
		return te
	}
	return task.EngineError(err)
}

func shapeName(s BatchShape) string {
	names := [...]string{
		"document_clear", "document_import", "document_deletion", "settings",
		"clear_and_settings", "settings_and_document_import",
		"index_creation", "index_update", "index_deletion", "index_swap", "control",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}
