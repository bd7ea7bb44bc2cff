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
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Stats exposes in-process counters for batches run and for succeeded and
// failed tasks, plus a batch-duration timer. There is no queue-depth
// metric, and Snapshot reports only the three counters, not the timer. It
// is a thin registry wrapper: callers read the Snapshot map rather than the
// registry, so the scheduler package stays the only place that names the
// underlying metric keys.
type Stats struct {
	registry       gometrics.Registry
	batchesRun     gometrics.Counter
	tasksFailed    gometrics.Counter
	tasksSucceeded gometrics.Counter
	batchDuration  gometrics.Timer
}

func NewStats() *Stats {
	r := gometrics.NewRegistry()
	s := &Stats{
		registry:       r,
		batchesRun:     gometrics.NewCounter(),
		tasksFailed:    gometrics.NewCounter(),
		tasksSucceeded: gometrics.NewCounter(),
		batchDuration:  gometrics.NewTimer(),
	}
	r.Register("scheduler.batches_run", s.batchesRun)
	r.Register("scheduler.tasks_failed", s.tasksFailed)
	r.Register("scheduler.tasks_succeeded", s.tasksSucceeded)
	r.Register("scheduler.batch_duration", s.batchDuration)
	return s
}

func (s *Stats) RecordBatch(d time.Duration, succeeded, failed int64) {
	s.batchesRun.Inc(1)
	s.batchDuration.Update(d)
	s.tasksSucceeded.Inc(succeeded)
	s.tasksFailed.Inc(failed)
}

func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"batches_run":     s.batchesRun.Count(),
		"tasks_failed":    s.tasksFailed.Count(),
		"tasks_succeeded": s.tasksSucceeded.Count(),
	}
}
