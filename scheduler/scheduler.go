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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/indexmap"
	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

// Scheduler is the top-level component wiring task registration to the
// single-goroutine loop, using a buffered wake signal rather than a
// condition variable so a burst of registrations during a busy batch
// collapses into one wake-up instead of queuing redundant ones.
type Scheduler struct {
	store   *store.Store
	content *content.Store
	mapper  *indexmap.Mapper
	exec    *Executor
	log     *zap.Logger
	stats   *Stats

	autobatchingEnabled bool

	notify chan struct{}
	stop   *StopFlag
	done   chan struct{}
	wg     sync.WaitGroup
}

type Config struct {
	AutobatchingEnabled bool
}

func New(s *store.Store, c *content.Store, m *indexmap.Mapper, log *zap.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		store:               s,
		content:             c,
		mapper:              m,
		exec:                NewExecutor(s, c, m, log),
		log:                 log,
		stats:               NewStats(),
		autobatchingEnabled: cfg.AutobatchingEnabled,
		notify:              make(chan struct{}, 1),
		stop:                &StopFlag{},
		done:                make(chan struct{}),
	}
}

// Register validates and enqueues a new task, then wakes the loop.
func (s *Scheduler) Register(kind task.Kind) (*task.Task, error) {
	t, err := s.store.Register(kind)
	if err != nil {
		return nil, err
	}
	s.wake()
	return t, nil
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// StopProcessing sets the cooperative must-stop-processing flag; the
// currently running batch, if any, aborts at its next checkpoint and rolls
// back to Enqueued.
func (s *Scheduler) StopProcessing() { s.stop.Request() }

// Run drives the scheduler loop until Close is called. Intended to be
// started in its own goroutine by the owner of the Scheduler.
func (s *Scheduler) Run() {
	s.wg.Add(1)
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		batch, err := s.selectBatch()
		if err != nil {
			if fatal, ok := err.(*task.Error); ok && fatal.Severity == task.SeverityFatal {
				s.log.Error("fatal error selecting batch, stopping loop", zap.Error(err))
				return
			}
			s.log.Error("error selecting batch", zap.Error(err))
			continue
		}
		if batch == nil {
			select {
			case <-s.notify:
			case <-s.done:
				return
			}
			continue
		}

		started := time.Now()
		if err := s.exec.Execute(batch, s.stop); err != nil {
			if fatal, ok := err.(*task.Error); ok && fatal.Severity == task.SeverityFatal {
				s.log.Error("fatal error executing batch, stopping loop", zap.Error(err))
				return
			}
			s.log.Error("error executing batch", zap.Error(err))
		} else {
			var succeeded, failed int64
			for _, t := range batch.Tasks {
				switch t.Status {
				case task.StatusSucceeded, task.StatusCanceled:
					succeeded++
				case task.StatusFailed:
					failed++
				}
			}
			s.stats.RecordBatch(time.Since(started), succeeded, failed)
		}
		s.stop.Reset()
	}
}

// Stats returns the scheduler's in-process metrics registry.
func (s *Scheduler) Stats() map[string]int64 { return s.stats.Snapshot() }

// Close stops the loop goroutine started by Run and waits for it to exit.
func (s *Scheduler) Close() {
	close(s.done)
	s.wg.Wait()
}
