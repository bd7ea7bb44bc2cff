// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package task defines the durable record of one unit of scheduler work: its
// status, its closed-variant kind and details, and the few helpers shared by
// the store and scheduler packages for reasoning about it.
package task

import "fmt"

// Status is the lifecycle state of a Task. Enqueued and Processing are the
// non-terminal states; the scheduler moves tasks from Enqueued straight to
// a terminal status and never sets Processing itself.
type Status uint8

const (
	StatusEnqueued Status = iota
	StatusProcessing
	StatusSucceeded
	StatusFailed
	StatusCanceled
)

var statusNames = [...]string{
	StatusEnqueued:   "enqueued",
	StatusProcessing: "processing",
	StatusSucceeded:  "succeeded",
	StatusFailed:     "failed",
	StatusCanceled:   "canceled",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// IsTerminal reports whether no further status transition is possible for a
// task in this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// AllStatuses lists every status, in declaration order.
var AllStatuses = [...]Status{
	StatusEnqueued, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled,
}
