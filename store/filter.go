// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package store

import (
	"github.com/couchbase/task-scheduler/bitmap"
	"github.com/couchbase/task-scheduler/task"
)

// TimeRange is an exclusive (after, before) bound on a timestamp field. A
// nil bound is unbounded on that side.
type TimeRange struct {
	After  *int64 // nanoseconds, exclusive
	Before *int64 // nanoseconds, exclusive
}

// Filter carries every facet a task query accepts. Every non-empty/non-nil
// field narrows the result by intersection; an empty Filter matches every
// task.
type Filter struct {
	Statuses []task.Status
	Kinds    []task.KindTag
	Indexes  []string
	CanceledBy []uint32

	Enqueued TimeRange
	Started  TimeRange
	Finished TimeRange

	// UIDGreaterThan/UIDLessThan bound the uid itself, exclusive.
	UIDGreaterThan *uint32
	UIDLessThan    *uint32
}

// isEmpty reports whether the filter has no facets at all, letting query()
// shortcut straight to "all tasks" without touching any secondary index.
func (f Filter) isEmpty() bool {
	return len(f.Statuses) == 0 && len(f.Kinds) == 0 && len(f.Indexes) == 0 &&
		len(f.CanceledBy) == 0 &&
		f.Enqueued == (TimeRange{}) && f.Started == (TimeRange{}) && f.Finished == (TimeRange{}) &&
		f.UIDGreaterThan == nil && f.UIDLessThan == nil
}

// bitmapsForStatuses looks up and unions the status bitmaps named by ss.
func (s *Store) bitmapsForStatuses(ss []task.Status) (*bitmap.Bitmap, error) {
	bitmaps := make([]*bitmap.Bitmap, 0, len(ss))
	for _, st := range ss {
		b, err := s.readBitmap(Status, statusKey(st))
		if err != nil {
			return nil, err
		}
		bitmaps = append(bitmaps, b)
	}
	return bitmap.Union(bitmaps...), nil
}

func (s *Store) bitmapsForKinds(ks []task.KindTag) (*bitmap.Bitmap, error) {
	bitmaps := make([]*bitmap.Bitmap, 0, len(ks))
	for _, k := range ks {
		b, err := s.readBitmap(Kind, kindKey(k))
		if err != nil {
			return nil, err
		}
		bitmaps = append(bitmaps, b)
	}
	return bitmap.Union(bitmaps...), nil
}

func (s *Store) bitmapsForIndexes(indexes []string) (*bitmap.Bitmap, error) {
	bitmaps := make([]*bitmap.Bitmap, 0, len(indexes))
	for _, idx := range indexes {
		b, err := s.readBitmap(IndexTasks, []byte(idx))
		if err != nil {
			return nil, err
		}
		bitmaps = append(bitmaps, b)
	}
	return bitmap.Union(bitmaps...), nil
}

// rangeBitmap unions every bitmap stored in table at a timestamp key
// strictly between after and before, streaming the time-indexed table
// between the nanosecond bounds.
func (s *Store) rangeBitmap(table string, tr TimeRange) (*bitmap.Bitmap, error) {
	var start, end []byte
	if tr.After != nil {
		start = timeKey(*tr.After + 1)
	}
	if tr.Before != nil {
		end = timeKey(*tr.Before)
	}

	result := bitmap.New()
	err := s.eng.scanRange(table, start, end, func(_, value []byte) bool {
		b, decodeErr := decodeBitmap(value)
		if decodeErr != nil {
			return false
		}
		result = result.Or(b)
		return true
	})
	return result, err
}

func (s *Store) uidRangeBitmap(gt, lt *uint32) (*bitmap.Bitmap, error) {
	if gt == nil && lt == nil {
		return nil, nil
	}
	result := bitmap.New()
	err := s.eng.scanRange(AllTasks, nil, nil, func(key, _ []byte) bool {
		uid := decodeUidKey(key)
		if gt != nil && uid <= *gt {
			return true
		}
		if lt != nil && uid >= *lt {
			return true
		}
		result.Add(uid)
		return true
	})
	return result, err
}
