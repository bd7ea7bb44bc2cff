// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package task

// Details mirrors Kind and carries the human-visible counters the API
// layer renders back to callers. Registration populates the received-side
// counters; the executor fills in the result-side counters when the task
// reaches a terminal status. Like Kind, exactly one non-nil field (or none,
// for Snapshot) is populated, selected by the owning Task's Kind.Tag.
type Details struct {
	DocumentAdditionOrUpdate *DocumentAdditionOrUpdateDetails
	DocumentDeletion         *DocumentDeletionDetails
	DocumentClear            *DocumentClearDetails
	SettingsUpdate           *SettingsUpdateDetails
	IndexInfo                *IndexInfoDetails
	IndexDeletion            *IndexDeletionDetails
	IndexSwap                *IndexSwapDetails
	TaskCancelation          *TaskCancelationDetails
	TaskDeletion             *TaskDeletionDetails
	DumpCreation             *DumpCreationDetails
}

type DocumentAdditionOrUpdateDetails struct {
	ReceivedDocuments uint64
	IndexedDocuments  *uint64 // nil until the executor completes the task
}

type DocumentDeletionDetails struct {
	MatchedDocuments uint64
	DeletedDocuments  *uint64
}

type DocumentClearDetails struct {
	DeletedDocuments *uint64
}

type SettingsUpdateDetails struct {
	Settings map[string]interface{}
}

// IndexInfoDetails is the result of IndexCreation/IndexUpdate.
type IndexInfoDetails struct {
	PrimaryKey string
}

type IndexDeletionDetails struct {
	DeletedDocuments *uint64
}

type IndexSwapDetails struct {
	Swaps []IndexSwapPair
}

type TaskCancelationDetails struct {
	MatchedTasks  uint64
	CanceledTasks *uint64
	OriginalQuery string
}

type TaskDeletionDetails struct {
	MatchedTasks uint64
	DeletedTasks *uint64
	OriginalQuery string
}

type DumpCreationDetails struct {
	DumpUID string
}

// SeedDetails builds the registration-time Details for a freshly validated
// Kind, populating only the received-side counters the caller already
// knows.
func SeedDetails(k Kind) Details {
	switch k.Tag {
	case KindDocumentAdditionOrUpdate:
		return Details{DocumentAdditionOrUpdate: &DocumentAdditionOrUpdateDetails{
			ReceivedDocuments: k.DocumentAdditionOrUpdate.DocumentsCount,
		}}
	case KindDocumentDeletion:
		return Details{DocumentDeletion: &DocumentDeletionDetails{
			MatchedDocuments: uint64(len(k.DocumentDeletion.DocumentIDs)),
		}}
	case KindDocumentClear:
		return Details{DocumentClear: &DocumentClearDetails{}}
	case KindSettingsUpdate:
		return Details{SettingsUpdate: &SettingsUpdateDetails{Settings: k.SettingsUpdate.NewSettings}}
	case KindIndexCreation:
		return Details{IndexInfo: &IndexInfoDetails{PrimaryKey: k.IndexCreation.PrimaryKey}}
	case KindIndexUpdate:
		return Details{IndexInfo: &IndexInfoDetails{PrimaryKey: k.IndexUpdate.PrimaryKey}}
	case KindIndexDeletion:
		return Details{IndexDeletion: &IndexDeletionDetails{}}
	case KindIndexSwap:
		return Details{IndexSwap: &IndexSwapDetails{Swaps: k.IndexSwap.Swaps}}
	case KindTaskCancelation:
		matched := uint64(0)
		if k.TaskCancelation.Tasks != nil {
			matched = k.TaskCancelation.Tasks.Len()
		}
		return Details{TaskCancelation: &TaskCancelationDetails{MatchedTasks: matched, OriginalQuery: k.TaskCancelation.Query}}
	case KindTaskDeletion:
		matched := uint64(0)
		if k.TaskDeletion.Tasks != nil {
			matched = k.TaskDeletion.Tasks.Len()
		}
		return Details{TaskDeletion: &TaskDeletionDetails{MatchedTasks: matched, OriginalQuery: k.TaskDeletion.Query}}
	case KindDumpCreation:
		return Details{DumpCreation: &DumpCreationDetails{DumpUID: k.DumpCreation.DumpUID}}
	default: // KindSnapshot
		return Details{}
	}
}
