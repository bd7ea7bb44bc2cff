// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package scheduler

import "github.com/couchbase/task-scheduler/task"

// Autobatch is the pure decision procedure that merges adjacent enqueued
// tasks on one index into the largest batch shape they are compatible with.
// pairs must all share one index_uid (per-index isolation is the caller's
// job — the scheduler loop gathers one index's enqueued tasks before
// calling this).
// indexExists tells the function whether a data batch must carry
// must_create_index because the index does not exist yet (distinct from
// absorbing an explicit IndexCreation task, which sets the same flag for a
// different reason). autobatchingEnabled=false degrades to "at most one
// task", matching configuration-disabled autobatching.
func Autobatch(pairs []taskIDPair, indexExists bool, autobatchingEnabled bool) *Descriptor {
	if len(pairs) == 0 {
		return nil
	}
	if !autobatchingEnabled {
		return singleton(pairs[0], indexExists)
	}

	head := pairs[0]
	switch head.Kind.Tag {
	case task.KindIndexSwap:
		return &Descriptor{Shape: ShapeIndexSwap, IDs: []uint32{head.UID}}

	case task.KindIndexUpdate:
		return &Descriptor{Shape: ShapeIndexUpdate, IDs: []uint32{head.UID}}

	case task.KindIndexDeletion:
		return &Descriptor{Shape: ShapeIndexDeletion, IDs: []uint32{head.UID}}

	case task.KindIndexCreation:
		if len(pairs) > 1 {
			if d := dataMerge(pairs[1:], true); d != nil {
				d.MustCreateIndex = true
				if head.Kind.IndexCreation.PrimaryKey != "" {
					d.PrimaryKey = head.Kind.IndexCreation.PrimaryKey
				}
				return d
			}
		}
		return &Descriptor{Shape: ShapeIndexCreation, IDs: []uint32{head.UID}}

	default:
		d := dataMerge(pairs, indexExists)
		if d != nil && d.Shape == ShapeIndexDeletion {
			d.MustCreateIndex = !indexExists
		}
		return d
	}
}

// singleton builds a one-task descriptor when autobatching is disabled.
func singleton(p taskIDPair, indexExists bool) *Descriptor {
	switch p.Kind.Tag {
	case task.KindIndexSwap:
		return &Descriptor{Shape: ShapeIndexSwap, IDs: []uint32{p.UID}}
	case task.KindIndexUpdate:
		return &Descriptor{Shape: ShapeIndexUpdate, IDs: []uint32{p.UID}}
	case task.KindIndexDeletion:
		return &Descriptor{Shape: ShapeIndexDeletion, IDs: []uint32{p.UID}}
	case task.KindIndexCreation:
		return &Descriptor{Shape: ShapeIndexCreation, IDs: []uint32{p.UID},
			MustCreateIndex: true, PrimaryKey: p.Kind.IndexCreation.PrimaryKey}
	case task.KindDocumentClear:
		return &Descriptor{Shape: ShapeDocumentClear, ClearIDs: []uint32{p.UID}, MustCreateIndex: !indexExists}
	case task.KindDocumentDeletion:
		return &Descriptor{Shape: ShapeDocumentDeletion, DeletionIDs: []uint32{p.UID}, MustCreateIndex: !indexExists}
	case task.KindSettingsUpdate:
		return &Descriptor{Shape: ShapeSettings, SettingsIDs: []uint32{p.UID}, MustCreateIndex: !indexExists}
	case task.KindDocumentAdditionOrUpdate:
		a := p.Kind.DocumentAdditionOrUpdate
		return &Descriptor{Shape: ShapeDocumentImport, ImportIDs: []uint32{p.UID},
			Method: a.Method, PrimaryKey: a.PrimaryKey, MustCreateIndex: !indexExists}
	default:
		return nil
	}
}

// mergeMode tracks which family of data-task run is currently being
// accumulated by dataMerge's greedy scan.
type mergeMode uint8

const (
	modeNone mergeMode = iota
	modeClear
	modeDelete
	modeSettings
	modeImport
	modeClearAndSettings
	modeSettingsAndImport
)

// dataMerge implements the greedy, head-anchored merge rules for the four
// data-task kinds (DocumentAdditionOrUpdate, DocumentDeletion,
// DocumentClear, SettingsUpdate) plus absorption of a trailing
// IndexDeletion. Returns nil if pairs[0] is not a data-task kind.
func dataMerge(pairs []taskIDPair, indexExists bool) *Descriptor {
	if len(pairs) == 0 {
		return nil
	}

	var clearIDs, settingsIDs, importIDs, deletionIDs []uint32
	var method task.ReplicationMethod
	var primaryKey string
	mode := modeNone

	for _, p := range pairs {
		switch mode {
		case modeNone:
			switch p.Kind.Tag {
			case task.KindDocumentClear:
				clearIDs = append(clearIDs, p.UID)
				mode = modeClear
			case task.KindDocumentDeletion:
				deletionIDs = append(deletionIDs, p.UID)
				mode = modeDelete
			case task.KindSettingsUpdate:
				settingsIDs = append(settingsIDs, p.UID)
				mode = modeSettings
			case task.KindDocumentAdditionOrUpdate:
				a := p.Kind.DocumentAdditionOrUpdate
				importIDs = append(importIDs, p.UID)
				method = a.Method
				primaryKey = a.PrimaryKey
				mode = modeImport
			default:
				return nil // pairs[0] isn't a data task
			}
			continue

		case modeClear:
			switch p.Kind.Tag {
			case task.KindDocumentClear, task.KindDocumentDeletion:
				clearIDs = append(clearIDs, p.UID)
				continue
			case task.KindSettingsUpdate:
				settingsIDs = append(settingsIDs, p.UID)
				mode = modeClearAndSettings
				continue
			case task.KindIndexDeletion:
				return absorbIndexDeletion(clearIDs, p.UID)
			}

		case modeDelete:
			switch p.Kind.Tag {
			case task.KindDocumentDeletion:
				deletionIDs = append(deletionIDs, p.UID)
				continue
			case task.KindDocumentClear:
				clearIDs = append(append([]uint32{}, deletionIDs...), p.UID)
				deletionIDs = nil
				mode = modeClear
				continue
			case task.KindIndexDeletion:
				return absorbIndexDeletion(deletionIDs, p.UID)
			}

		case modeSettings:
			switch p.Kind.Tag {
			case task.KindSettingsUpdate:
				settingsIDs = append(settingsIDs, p.UID)
				continue
			case task.KindDocumentClear, task.KindDocumentDeletion:
				clearIDs = append(clearIDs, p.UID)
				mode = modeClearAndSettings
				continue
			case task.KindDocumentAdditionOrUpdate:
				a := p.Kind.DocumentAdditionOrUpdate
				importIDs = append(importIDs, p.UID)
				method = a.Method
				primaryKey = a.PrimaryKey
				mode = modeSettingsAndImport
				continue
			case task.KindIndexDeletion:
				return absorbIndexDeletion(settingsIDs, p.UID)
			}

		case modeImport:
			switch p.Kind.Tag {
			case task.KindDocumentAdditionOrUpdate:
				a := p.Kind.DocumentAdditionOrUpdate
				if a.Method != method || !compatiblePrimaryKey(primaryKey, a.PrimaryKey) {
					return finishDataMerge(ShapeDocumentImport, clearIDs, settingsIDs, importIDs, deletionIDs, method, primaryKey, indexExists)
				}
				importIDs = append(importIDs, p.UID)
				if primaryKey == "" {
					primaryKey = a.PrimaryKey
				}
				continue
			case task.KindSettingsUpdate:
				settingsIDs = append(settingsIDs, p.UID)
				mode = modeSettingsAndImport
				continue
			case task.KindIndexDeletion:
				return absorbIndexDeletion(importIDs, p.UID)
			}

		case modeClearAndSettings:
			switch p.Kind.Tag {
			case task.KindDocumentClear, task.KindDocumentDeletion:
				clearIDs = append(clearIDs, p.UID)
				continue
			case task.KindSettingsUpdate:
				settingsIDs = append(settingsIDs, p.UID)
				continue
			case task.KindIndexDeletion:
				return absorbIndexDeletion(append(append([]uint32{}, clearIDs...), settingsIDs...), p.UID)
			}

		case modeSettingsAndImport:
			switch p.Kind.Tag {
			case task.KindSettingsUpdate:
				settingsIDs = append(settingsIDs, p.UID)
				continue
			case task.KindDocumentAdditionOrUpdate:
				a := p.Kind.DocumentAdditionOrUpdate
				if a.Method != method || !compatiblePrimaryKey(primaryKey, a.PrimaryKey) {
					return finishDataMerge(ShapeSettingsAndDocumentImport, clearIDs, settingsIDs, importIDs, deletionIDs, method, primaryKey, indexExists)
				}
				importIDs = append(importIDs, p.UID)
				if primaryKey == "" {
					primaryKey = a.PrimaryKey
				}
				continue
			case task.KindIndexDeletion:
				return absorbIndexDeletion(append(append([]uint32{}, settingsIDs...), importIDs...), p.UID)
			}
		}

		// Any kind not handled by the active mode's switch above stops the run.
		return finishDataMerge(shapeFor(mode), clearIDs, settingsIDs, importIDs, deletionIDs, method, primaryKey, indexExists)
	}

	return finishDataMerge(shapeFor(mode), clearIDs, settingsIDs, importIDs, deletionIDs, method, primaryKey, indexExists)
}

func shapeFor(mode mergeMode) BatchShape {
	switch mode {
	case modeClear:
		return ShapeDocumentClear
	case modeDelete:
		return ShapeDocumentDeletion
	case modeSettings:
		return ShapeSettings
	case modeImport:
		return ShapeDocumentImport
	case modeClearAndSettings:
		return ShapeClearAndSettings
	case modeSettingsAndImport:
		return ShapeSettingsAndDocumentImport
	default:
		return ShapeDocumentClear
	}
}

func finishDataMerge(shape BatchShape, clearIDs, settingsIDs, importIDs, deletionIDs []uint32,
	method task.ReplicationMethod, primaryKey string, indexExists bool) *Descriptor {
	return &Descriptor{
		Shape:           shape,
		Method:          method,
		PrimaryKey:      primaryKey,
		MustCreateIndex: !indexExists,
		ClearIDs:        clearIDs,
		SettingsIDs:     settingsIDs,
		ImportIDs:       importIDs,
		DeletionIDs:     deletionIDs,
	}
}

// absorbIndexDeletion folds every id accumulated so far, plus the deletion
// task itself, into one IndexDeletion batch: an index deletion absorbs any
// number of adjacent same-index data tasks, because deletion annihilates
// all prior effects on that index.
func absorbIndexDeletion(priorIDs []uint32, deletionUID uint32) *Descriptor {
	ids := append(append([]uint32{}, priorIDs...), deletionUID)
	return &Descriptor{Shape: ShapeIndexDeletion, IDs: ids}
}

// compatiblePrimaryKey implements "a primary-key-setting addition task may
// only be merged with others if their declared primary keys are identical
// (or unspecified)".
func compatiblePrimaryKey(established, candidate string) bool {
	if established == "" || candidate == "" {
		return true
	}
	return established == candidate
}
