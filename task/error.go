// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package task

import "fmt"

// Category is the closed set of error kinds the core distinguishes: a
// category + cause + severity shape so a single type can be logged
// uniformly and inspected programmatically.
type Category uint8

const (
	// CategoryInvalidRequest marks a malformed registration; the task is
	// never created and the error is returned synchronously to the caller.
	CategoryInvalidRequest Category = iota
	// CategoryIndexNotFound surfaces as a terminal task failure.
	CategoryIndexNotFound
	// CategoryIndexAlreadyExists surfaces as a terminal task failure.
	CategoryIndexAlreadyExists
	// CategoryCorruptedTaskQueue marks an invariant violation. Fatal: the
	// scheduler loop stops the process rather than attaching this to a task.
	CategoryCorruptedTaskQueue
	// CategoryEngine wraps an opaque error from the underlying indexing
	// engine stand-in.
	CategoryEngine
	// CategoryContentFile is logged but never surfaced to the caller, e.g.
	// during best-effort cancelation cleanup.
	CategoryContentFile
)

// Severity controls whether the scheduler loop keeps running after
// recording the error on a task.
type Severity uint8

const (
	SeverityRecoverable Severity = iota // attach to task, keep the loop running
	SeverityFatal                       // CorruptedTaskQueue: bubble up, stop the process
)

var categoryNames = [...]string{
	CategoryInvalidRequest:     "invalid_request",
	CategoryIndexNotFound:      "index_not_found",
	CategoryIndexAlreadyExists: "index_already_exists",
	CategoryCorruptedTaskQueue: "corrupted_task_queue",
	CategoryEngine:             "engine_error",
	CategoryContentFile:        "content_file_error",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Error is the error type recorded on a Failed task and returned
// synchronously from registration.
type Error struct {
	Category Category
	Cause    error
	Severity Severity
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Cause)
	}
	return e.Category.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(category Category, cause error) *Error {
	severity := SeverityRecoverable
	if category == CategoryCorruptedTaskQueue {
		severity = SeverityFatal
	}
	return &Error{Category: category, Cause: cause, Severity: severity}
}

func InvalidRequest(cause error) *Error       { return NewError(CategoryInvalidRequest, cause) }
func IndexNotFound(indexUID string) *Error {
	return NewError(CategoryIndexNotFound, fmt.Errorf("index %q not found", indexUID))
}
func IndexAlreadyExists(indexUID string) *Error {
	return NewError(CategoryIndexAlreadyExists, fmt.Errorf("index %q already exists", indexUID))
}
func CorruptedTaskQueue(cause error) *Error { return NewError(CategoryCorruptedTaskQueue, cause) }
func EngineError(cause error) *Error        { return NewError(CategoryEngine, cause) }
func ContentFileError(cause error) *Error   { return NewError(CategoryContentFile, cause) }
