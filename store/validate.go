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
	"fmt"
	"regexp"

	"github.com/couchbase/task-scheduler/task"
)

// indexUIDPattern constrains the user-facing index uid this scheduler
// accepts to the same conservative charset used for index-name validation
// elsewhere.
var indexUIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validIndexUID(uid string) bool {
	return uid != "" && len(uid) <= 512 && indexUIDPattern.MatchString(uid)
}

// validateKind performs the static validation register() runs before
// allocating a uid: unknown index-uid format, self-swap, duplicate swap
// pairs, empty document-id list for deletion, etc. A non-nil return means
// InvalidRequest and the task is never created.
func validateKind(k task.Kind) error {
	switch k.Tag {
	case task.KindDocumentAdditionOrUpdate:
		p := k.DocumentAdditionOrUpdate
		if !validIndexUID(p.IndexUID) {
			return fmt.Errorf("invalid index uid %q", p.IndexUID)
		}
		if p.ContentFile == "" {
			return fmt.Errorf("document addition requires a content file")
		}
	case task.KindDocumentDeletion:
		p := k.DocumentDeletion
		if !validIndexUID(p.IndexUID) {
			return fmt.Errorf("invalid index uid %q", p.IndexUID)
		}
		if len(p.DocumentIDs) == 0 {
			return fmt.Errorf("document deletion requires at least one document id")
		}
	case task.KindDocumentClear:
		if !validIndexUID(k.DocumentClear.IndexUID) {
			return fmt.Errorf("invalid index uid %q", k.DocumentClear.IndexUID)
		}
	case task.KindSettingsUpdate:
		if !validIndexUID(k.SettingsUpdate.IndexUID) {
			return fmt.Errorf("invalid index uid %q", k.SettingsUpdate.IndexUID)
		}
	case task.KindIndexCreation:
		if !validIndexUID(k.IndexCreation.IndexUID) {
			return fmt.Errorf("invalid index uid %q", k.IndexCreation.IndexUID)
		}
	case task.KindIndexUpdate:
		if !validIndexUID(k.IndexUpdate.IndexUID) {
			return fmt.Errorf("invalid index uid %q", k.IndexUpdate.IndexUID)
		}
	case task.KindIndexDeletion:
		if !validIndexUID(k.IndexDeletion.IndexUID) {
			return fmt.Errorf("invalid index uid %q", k.IndexDeletion.IndexUID)
		}
	case task.KindIndexSwap:
		if err := validateSwaps(k.IndexSwap.Swaps); err != nil {
			return err
		}
	case task.KindTaskCancelation, task.KindTaskDeletion:
		// query/tasks are resolved by the caller (adminport) before
		// registration; nothing further to validate here.
	case task.KindDumpCreation, task.KindSnapshot:
		// no payload-level constraints.
	}
	return nil
}

func validateSwaps(swaps []task.IndexSwapPair) error {
	if len(swaps) == 0 {
		return fmt.Errorf("index swap requires at least one pair")
	}
	seen := make(map[string]bool, len(swaps)*2)
	for _, sw := range swaps {
		if !validIndexUID(sw.LHS) || !validIndexUID(sw.RHS) {
			return fmt.Errorf("invalid index uid in swap pair (%q, %q)", sw.LHS, sw.RHS)
		}
		if sw.LHS == sw.RHS {
			return fmt.Errorf("cannot swap index %q with itself", sw.LHS)
		}
		for _, name := range [2]string{sw.LHS, sw.RHS} {
			if seen[name] {
				return fmt.Errorf("index %q appears in more than one swap pair", name)
			}
			seen[name] = true
		}
	}
	return nil
}
