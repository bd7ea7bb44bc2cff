// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package scheduler

import "sync/atomic"

// StopFlag is the cooperative "stop processing" signal: the executor polls
// it at indexing-engine checkpoints instead of being forcibly killed. A
// flag rather than a channel, since the executor is a single synchronous
// call per batch, not a long-lived stream goroutine.
type StopFlag struct {
	requested atomic.Bool
}

func (f *StopFlag) Request() { f.requested.Store(true) }

func (f *StopFlag) Requested() bool { return f.requested.Load() }

// Reset clears the flag; the loop calls it after every batch, so the next
// batch starts unflagged.
func (f *StopFlag) Reset() { f.requested.Store(false) }
