// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package scheduler implements the autobatcher, the batch executor, and the
// single-goroutine scheduler loop that drives task execution: one package
// owning the decision procedure, the state machine, and the driver loop
// around a shared store.
package scheduler

import "github.com/couchbase/task-scheduler/task"

// BatchShape discriminates the closed set of batch kinds the autobatcher
// can produce.
type BatchShape uint8

const (
	ShapeDocumentClear BatchShape = iota
	ShapeDocumentImport
	ShapeDocumentDeletion
	ShapeSettings
	ShapeClearAndSettings
	ShapeSettingsAndDocumentImport
	ShapeIndexCreation
	ShapeIndexUpdate
	ShapeIndexDeletion
	ShapeIndexSwap
	// shapeControl covers the four control-task batches (cancelation,
	// deletion, snapshot, dump) selected directly by the loop's priority
	// steps 1-4 rather than by the autobatcher; kept as one shape since
	// each control batch always has exactly one BatchKind-shaped task set.
	shapeControl
)

// Batch is a fully-resolved, ready-to-execute unit of work: the autobatcher
// descriptor hydrated with the actual task records by the Batch Builder.
type Batch struct {
	Shape  BatchShape
	Index  string // empty for control batches and IndexSwap
	Method task.ReplicationMethod

	// MustCreateIndex is true when an absorbed IndexCreation (or the lack
	// of a prior index) means the executor must create the index before
	// applying the rest of the batch. Surfaced to callers as
	// allow_index_creation on the affected task details.
	MustCreateIndex bool

	// PrimaryKey is the primary key declared by the absorbed creation or
	// by the first document-import task that named one, if any.
	PrimaryKey string

	// Tasks are every task this batch will mark terminal, in the order
	// Descriptor.AllUIDs returns them.
	// For ShapeClearAndSettings/ShapeSettingsAndDocumentImport, ClearIDs/
	// SettingsIDs/ImportIDs partition Tasks by sub-role so the executor
	// knows which counters to attribute to which task.
	Tasks []*task.Task

	ClearIDs    []uint32
	SettingsIDs []uint32
	ImportIDs   []uint32
	DeletionIDs []uint32
	SwapID      uint32
}

// taskIDPair is the autobatcher's input element. The autobatcher is a pure
// function over (uid, kind) pairs, deliberately not over full Task records,
// so that it never depends on mutable fields like status or details.
type taskIDPair struct {
	UID  uint32
	Kind task.Kind
}

// Descriptor is the autobatcher's pure-function output: a batch shape plus
// the uids it covers, before the Batch Builder resolves uids into task
// records.
type Descriptor struct {
	Shape           BatchShape
	Method          task.ReplicationMethod
	MustCreateIndex bool
	PrimaryKey      string

	ClearIDs    []uint32
	SettingsIDs []uint32
	ImportIDs   []uint32
	DeletionIDs []uint32
	IDs         []uint32 // IndexCreation/IndexUpdate/IndexDeletion/IndexSwap: the covered uids
}

// AllUIDs returns every uid the descriptor covers, grouped by sub-role
// (clear ids before settings ids, settings ids before import ids), each
// group in the order the autobatcher appended it; across groups the result
// is therefore not necessarily in uid order.
func (d *Descriptor) AllUIDs() []uint32 {
	switch d.Shape {
	case ShapeDocumentClear:
		return d.ClearIDs
	case ShapeDocumentImport:
		return d.ImportIDs
	case ShapeDocumentDeletion:
		return d.DeletionIDs
	case ShapeSettings:
		return d.SettingsIDs
	case ShapeClearAndSettings:
		return append(append([]uint32{}, d.ClearIDs...), d.SettingsIDs...)
	case ShapeSettingsAndDocumentImport:
		return append(append([]uint32{}, d.SettingsIDs...), d.ImportIDs...)
	default: // IndexCreation, IndexUpdate, IndexDeletion, IndexSwap
		return d.IDs
	}
}
