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
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/golang/snappy"

	"github.com/couchbase/task-scheduler/bitmap"
	"github.com/couchbase/task-scheduler/task"
)

// uidKey is the AllTasks primary key: a fixed-width big-endian uint32 so
// that a forward cursor scan over AllTasks visits uids in increasing order.
func uidKey(uid uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uid)
	return b[:]
}

func decodeUidKey(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// timeKey encodes a timestamp as nanoseconds-since-epoch in a fixed-width
// big-endian form. Task timestamps are always after the epoch, so unsigned
// big-endian encoding already preserves chronological order for a plain
// byte-wise range scan.
func timeKey(nanos int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(nanos))
	return b[:]
}

func decodeTimeKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// statusKey/kindKey: single-byte tags, the table key is the tag itself.
func statusKey(s task.Status) []byte { return []byte{byte(s)} }
func kindKey(k task.KindTag) []byte  { return []byte{byte(k)} }

// encodeBitmap/decodeBitmap implement the stable compressed-roaring
// serialization for every secondary-index bitmap value.
func encodeBitmap(b *bitmap.Bitmap) ([]byte, error) {
	if b == nil {
		b = bitmap.New()
	}
	return b.MarshalBinary()
}

func decodeBitmap(data []byte) (*bitmap.Bitmap, error) {
	b := bitmap.New()
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// taskRecord is the gob-friendly shadow of task.Task: it carries Kind and
// Details as they are and replaces the time.Time fields with int64 UTC
// nanoseconds. The encoded record is snappy-compressed on disk because
// settings payloads in particular can be large and repetitive across a run
// of SettingsUpdate tasks.
type taskRecord struct {
	UID        uint32
	EnqueuedAt int64
	StartedAt  *int64
	FinishedAt *int64
	Status     task.Status
	Kind       task.Kind
	Details    task.Details
	Error      *task.Error
	CanceledBy *uint32
}

func init() {
	gob.Register(task.DocumentAdditionOrUpdate{})
	gob.Register(task.DocumentDeletion{})
	gob.Register(task.DocumentClear{})
	gob.Register(task.SettingsUpdate{})
	gob.Register(task.IndexCreation{})
	gob.Register(task.IndexUpdate{})
	gob.Register(task.IndexDeletion{})
	gob.Register(task.IndexSwap{})
	gob.Register(task.TaskCancelation{})
	gob.Register(task.TaskDeletion{})
	gob.Register(task.DumpCreation{})
}

// encodeTask serializes a task record deterministically: gob encode then
// snappy-compress.
func encodeTask(t *task.Task) ([]byte, error) {
	rec := taskRecord{
		UID:        t.UID,
		EnqueuedAt: t.EnqueuedAt.UnixNano(),
		Status:     t.Status,
		Kind:       t.Kind,
		Details:    t.Details,
		Error:      t.Error,
		CanceledBy: t.CanceledBy,
	}
	if t.StartedAt != nil {
		n := t.StartedAt.UnixNano()
		rec.StartedAt = &n
	}
	if t.FinishedAt != nil {
		n := t.FinishedAt.UnixNano()
		rec.FinishedAt = &n
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func decodeTask(data []byte) (*task.Task, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	var rec taskRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, err
	}

	t := &task.Task{
		UID:        rec.UID,
		EnqueuedAt: nanoTime(rec.EnqueuedAt),
		Status:     rec.Status,
		Kind:       rec.Kind,
		Details:    rec.Details,
		Error:      rec.Error,
		CanceledBy: rec.CanceledBy,
	}
	if rec.StartedAt != nil {
		ts := nanoTime(*rec.StartedAt)
		t.StartedAt = &ts
	}
	if rec.FinishedAt != nil {
		ts := nanoTime(*rec.FinishedAt)
		t.FinishedAt = &ts
	}
	return t, nil
}

func nanoTime(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}
