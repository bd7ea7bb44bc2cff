// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package task

import "time"

// Task is the durable record of one unit of scheduler work. uid is the
// primary key and is dense and strictly increasing (see store.Store); the
// scheduler sets Status, Details, Error, CanceledBy and (when still unset)
// StartedAt and FinishedAt when it commits the batch that finishes the task.
type Task struct {
	UID uint32

	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	Status Status
	Kind   Kind
	Details Details
	Error   *Error

	// CanceledBy is the uid of the TaskCancelation task that terminated
	// this one, if any.
	CanceledBy *uint32
}

// IndexUIDs delegates to the Kind's IndexUIDs — kept as a Task method so
// store/scheduler code reads "t.IndexUIDs()" at call sites instead of
// reaching through t.Kind.
func (t *Task) IndexUIDs() []string { return t.Kind.IndexUIDs() }

// ContentFileID returns the identifier of the content file this task owns,
// if any. Only DocumentAdditionOrUpdate tasks own one.
func (t *Task) ContentFileID() (string, bool) {
	if t.Kind.Tag == KindDocumentAdditionOrUpdate && t.Kind.DocumentAdditionOrUpdate.ContentFile != "" {
		return t.Kind.DocumentAdditionOrUpdate.ContentFile, true
	}
	return "", false
}

// Clone returns a deep-enough copy for safe mutation by callers that must
// not alias the original record's timestamp and uid pointers.
func (t *Task) Clone() *Task {
	clone := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		clone.FinishedAt = &finished
	}
	if t.CanceledBy != nil {
		cb := *t.CanceledBy
		clone.CanceledBy = &cb
	}
	return &clone
}
