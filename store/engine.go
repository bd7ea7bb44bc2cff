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
	"github.com/couchbase/goforestdb"
	"github.com/pkg/errors"
)

// engine owns the single forestdb.File and the seven named KVStore handles
// this package needs, the same way a storage manager opens one
// forestdb.File ("meta") plus a handle per logical store. Every write goes
// through commit(), which issues a manual WAL flush commit so that a
// successful return is a durability guarantee, matching the Task Store's
// single-writer discipline.
type engine struct {
	file  *forestdb.File
	kv    map[string]*forestdb.KVStore
}

func openEngine(path string) (*engine, error) {
	fdbConfig := forestdb.DefaultConfig()
	file, err := forestdb.Open(path, fdbConfig)
	if err != nil {
		return nil, errors.Wrap(err, "opening task store file")
	}

	e := &engine{file: file, kv: make(map[string]*forestdb.KVStore, len(tables))}
	kvConfig := forestdb.DefaultKVStoreConfig()
	for _, name := range tables {
		kv, err := file.OpenKVStore(name, kvConfig)
		if err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "opening table %q", name)
		}
		e.kv[name] = kv
	}
	return e, nil
}

func (e *engine) close() error {
	for _, kv := range e.kv {
		kv.Close()
	}
	return e.file.Close()
}

// commit durably flushes every pending KVStore mutation in one file-level
// transaction boundary.
func (e *engine) commit() error {
	if err := e.file.Commit(forestdb.COMMIT_MANUAL_WAL_FLUSH); err != nil {
		return errors.Wrap(err, "committing task store transaction")
	}
	return nil
}

func (e *engine) get(table string, key []byte) ([]byte, bool, error) {
	kv := e.kv[table]
	val, err := kv.GetKV(key)
	if err != nil {
		if err == forestdb.RESULT_KEY_NOT_FOUND {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading table %q", table)
	}
	return val, true, nil
}

func (e *engine) set(table string, key, value []byte) error {
	if err := e.kv[table].SetKV(key, value); err != nil {
		return errors.Wrapf(err, "writing table %q", table)
	}
	return nil
}

func (e *engine) delete(table string, key []byte) error {
	if err := e.kv[table].DeleteKV(key); err != nil && err != forestdb.RESULT_KEY_NOT_FOUND {
		return errors.Wrapf(err, "deleting from table %q", table)
	}
	return nil
}

// scanRange visits every key in [start, end) of table in ascending order,
// calling fn with each key/value; iteration stops early if fn returns
// false. end == nil means unbounded.
func (e *engine) scanRange(table string, start, end []byte, fn func(key, value []byte) bool) error {
	kv := e.kv[table]
	iter, err := forestdb.IteratorInit(kv, start, end, forestdb.ITR_NONE)
	if err != nil {
		if err == forestdb.RESULT_ITERATOR_FAIL {
			return nil
		}
		return errors.Wrapf(err, "scanning table %q", table)
	}
	defer iter.Close()

	for {
		doc, err := iter.Get()
		if err != nil {
			break
		}
		if !fn(doc.Key(), doc.Body()) {
			break
		}
		if err := iter.Next(); err != nil {
			break
		}
	}
	return nil
}
