// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package store implements the Task Store: a transactional ordered
// key-value store holding the canonical task records and six secondary-index
// bitmaps, backed by one embedded forestdb.File with one named KVStore per
// logical table, the same way a single forestdb.File with several named
// KVStore handles backs an embedded storage manager.
package store

// Table names are stable on-disk identifiers: renaming one requires a
// migration.
const (
	// AllTasks: uid (big-endian uint32) -> serialized task record.
	AllTasks = "all_tasks"

	// Status: status tag (1 byte) -> bitmap of task uids.
	Status = "status"

	// Kind: kind tag (1 byte) -> bitmap of task uids.
	Kind = "kind"

	// IndexTasks: index_uid (raw bytes) -> bitmap of task uids.
	IndexTasks = "index_tasks"

	// EnqueuedAt: big-endian int64 nanoseconds -> bitmap of task uids.
	EnqueuedAt = "enqueued_at"

	// StartedAt: big-endian int64 nanoseconds -> bitmap of task uids.
	StartedAt = "started_at"

	// FinishedAt: big-endian int64 nanoseconds -> bitmap of task uids.
	FinishedAt = "finished_at"
)

// tables lists every logical table the engine must open at startup, in a
// fixed order so iteration during open/close is deterministic.
var tables = []string{AllTasks, Status, Kind, IndexTasks, EnqueuedAt, StartedAt, FinishedAt}
