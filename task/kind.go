// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package task

import (
	"fmt"

	"github.com/couchbase/task-scheduler/bitmap"
)

// KindTag discriminates the closed set of task payload shapes. Adding a new
// variant means adding a new tag, a new payload struct, and a new arm in
// every exhaustive switch on KindTag across this module — that friction is
// intentional, see the autobatcher's static reasoning.
type KindTag uint8

const (
	KindDocumentAdditionOrUpdate KindTag = iota
	KindDocumentDeletion
	KindDocumentClear
	KindSettingsUpdate
	KindIndexCreation
	KindIndexUpdate
	KindIndexDeletion
	KindIndexSwap
	KindTaskCancelation
	KindTaskDeletion
	KindDumpCreation
	KindSnapshot
)

var kindNames = [...]string{
	KindDocumentAdditionOrUpdate: "documentAdditionOrUpdate",
	KindDocumentDeletion:         "documentDeletion",
	KindDocumentClear:            "documentClear",
	KindSettingsUpdate:           "settingsUpdate",
	KindIndexCreation:            "indexCreation",
	KindIndexUpdate:              "indexUpdate",
	KindIndexDeletion:            "indexDeletion",
	KindIndexSwap:                "indexSwap",
	KindTaskCancelation:          "taskCancelation",
	KindTaskDeletion:             "taskDeletion",
	KindDumpCreation:             "dumpCreation",
	KindSnapshot:                 "snapshot",
}

func (t KindTag) String() string {
	if int(t) < len(kindNames) {
		return kindNames[t]
	}
	return fmt.Sprintf("kind(%d)", uint8(t))
}

// AllKinds lists every tag, in declaration order.
var AllKinds = [...]KindTag{
	KindDocumentAdditionOrUpdate, KindDocumentDeletion, KindDocumentClear,
	KindSettingsUpdate, KindIndexCreation, KindIndexUpdate, KindIndexDeletion,
	KindIndexSwap, KindTaskCancelation, KindTaskDeletion, KindDumpCreation, KindSnapshot,
}

// ReplicationMethod is the write mode of a document addition task.
type ReplicationMethod uint8

const (
	ReplaceDocuments ReplicationMethod = iota
	UpdateDocuments
)

func (m ReplicationMethod) String() string {
	if m == ReplaceDocuments {
		return "replaceDocuments"
	}
	return "updateDocuments"
}

// DocumentAdditionOrUpdate is the payload of KindDocumentAdditionOrUpdate.
type DocumentAdditionOrUpdate struct {
	IndexUID            string
	PrimaryKey          string // empty means unspecified
	Method              ReplicationMethod
	ContentFile         string // content-store identifier
	DocumentsCount      uint64
	AllowIndexCreation  bool
}

// DocumentDeletion is the payload of KindDocumentDeletion.
type DocumentDeletion struct {
	IndexUID     string
	DocumentIDs  []string
}

// DocumentClear is the payload of KindDocumentClear.
type DocumentClear struct {
	IndexUID string
}

// SettingsUpdate is the payload of KindSettingsUpdate.
type SettingsUpdate struct {
	IndexUID           string
	NewSettings        map[string]interface{}
	IsDeletion         bool
	AllowIndexCreation bool
}

// IndexCreation is the payload of KindIndexCreation.
type IndexCreation struct {
	IndexUID   string
	PrimaryKey string // empty means unspecified
}

// IndexUpdate is the payload of KindIndexUpdate.
type IndexUpdate struct {
	IndexUID   string
	PrimaryKey string
}

// IndexDeletion is the payload of KindIndexDeletion.
type IndexDeletion struct {
	IndexUID string
}

// IndexSwapPair names the two index uids exchanged by one swap entry.
type IndexSwapPair struct {
	LHS string
	RHS string
}

// IndexSwap is the payload of KindIndexSwap.
type IndexSwap struct {
	Swaps []IndexSwapPair
}

// TaskCancelation is the payload of KindTaskCancelation.
type TaskCancelation struct {
	Query string // the human-readable filter the caller submitted
	Tasks *bitmap.Bitmap
}

// TaskDeletion is the payload of KindTaskDeletion.
type TaskDeletion struct {
	Query string
	Tasks *bitmap.Bitmap
}

// DumpCreation is the payload of KindDumpCreation.
type DumpCreation struct {
	InstanceUID string
	DumpUID     string
	Keys        []string
}

// Kind is the closed-variant task payload. Exactly one of the pointer fields
// is non-nil, selected by Tag; Snapshot carries no payload at all.
type Kind struct {
	Tag KindTag

	DocumentAdditionOrUpdate *DocumentAdditionOrUpdate
	DocumentDeletion         *DocumentDeletion
	DocumentClear            *DocumentClear
	SettingsUpdate           *SettingsUpdate
	IndexCreation            *IndexCreation
	IndexUpdate              *IndexUpdate
	IndexDeletion            *IndexDeletion
	IndexSwap                *IndexSwap
	TaskCancelation          *TaskCancelation
	TaskDeletion             *TaskDeletion
	DumpCreation             *DumpCreation
}

// IndexUIDs returns every index uid this kind touches, in the order the
// invariant "uid ∈ index_tasks[u] for each u ∈ indexes_of(kind)" requires.
// IndexSwap, TaskCancelation/Deletion, DumpCreation and Snapshot touch none.
func (k Kind) IndexUIDs() []string {
	switch k.Tag {
	case KindDocumentAdditionOrUpdate:
		return []string{k.DocumentAdditionOrUpdate.IndexUID}
	case KindDocumentDeletion:
		return []string{k.DocumentDeletion.IndexUID}
	case KindDocumentClear:
		return []string{k.DocumentClear.IndexUID}
	case KindSettingsUpdate:
		return []string{k.SettingsUpdate.IndexUID}
	case KindIndexCreation:
		return []string{k.IndexCreation.IndexUID}
	case KindIndexUpdate:
		return []string{k.IndexUpdate.IndexUID}
	case KindIndexDeletion:
		return []string{k.IndexDeletion.IndexUID}
	default:
		return nil
	}
}

// Constructors keep call sites from having to hand-assemble the tagged
// struct and risk leaving Tag out of sync with the populated field.

func NewDocumentAdditionOrUpdate(p DocumentAdditionOrUpdate) Kind {
	return Kind{Tag: KindDocumentAdditionOrUpdate, DocumentAdditionOrUpdate: &p}
}

func NewDocumentDeletion(p DocumentDeletion) Kind {
	return Kind{Tag: KindDocumentDeletion, DocumentDeletion: &p}
}

func NewDocumentClear(p DocumentClear) Kind {
	return Kind{Tag: KindDocumentClear, DocumentClear: &p}
}

func NewSettingsUpdate(p SettingsUpdate) Kind {
	return Kind{Tag: KindSettingsUpdate, SettingsUpdate: &p}
}

func NewIndexCreation(p IndexCreation) Kind {
	return Kind{Tag: KindIndexCreation, IndexCreation: &p}
}

func NewIndexUpdate(p IndexUpdate) Kind {
	return Kind{Tag: KindIndexUpdate, IndexUpdate: &p}
}

func NewIndexDeletion(p IndexDeletion) Kind {
	return Kind{Tag: KindIndexDeletion, IndexDeletion: &p}
}

func NewIndexSwap(p IndexSwap) Kind {
	return Kind{Tag: KindIndexSwap, IndexSwap: &p}
}

func NewTaskCancelation(p TaskCancelation) Kind {
	return Kind{Tag: KindTaskCancelation, TaskCancelation: &p}
}

func NewTaskDeletion(p TaskDeletion) Kind {
	return Kind{Tag: KindTaskDeletion, TaskDeletion: &p}
}

func NewDumpCreation(p DumpCreation) Kind {
	return Kind{Tag: KindDumpCreation, DumpCreation: &p}
}

func NewSnapshot() Kind {
	return Kind{Tag: KindSnapshot}
}
