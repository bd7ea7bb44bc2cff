package adminport

import (
	"fmt"
	"time"

	"github.com/couchbase/task-scheduler/bitmap"
	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/task"
)

// taskView is the wire shape of a task: a flattened, JSON-friendly
// projection of task.Task that never exposes the content-file identifier of
// a non-terminal task to callers (it is an internal handle, not part of the
// public surface).
type taskView struct {
	UID        uint32      `json:"uid"`
	Status     string      `json:"status"`
	Kind       string      `json:"kind"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	CanceledBy *uint32     `json:"canceledBy,omitempty"`
	Details    interface{} `json:"details,omitempty"`
	Error      *errorView  `json:"error,omitempty"`
}

type errorView struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type taskListResponse struct {
	Results []taskView `json:"results"`
	Next    string     `json:"next,omitempty"`
}

func newTaskView(t *task.Task) taskView {
	v := taskView{
		UID:        t.UID,
		Status:     t.Status.String(),
		Kind:       t.Kind.Tag.String(),
		EnqueuedAt: t.EnqueuedAt,
		StartedAt:  t.StartedAt,
		FinishedAt: t.FinishedAt,
		CanceledBy: t.CanceledBy,
		Details:    t.Details,
	}
	if t.Error != nil {
		v.Error = &errorView{Category: t.Error.Category.String(), Message: t.Error.Error()}
	}
	return v
}

// registerRequest is the JSON envelope the registration endpoint accepts:
// a discriminator naming the kind plus that kind's fields. Document
// addition tasks carry their payload inline as a "documents" array; the
// handler writes it to a fresh content file before registering the task,
// playing the role the real API layer's multipart upload would play.
type registerRequest struct {
	Kind string `json:"kind"`

	IndexUID   string `json:"indexUid,omitempty"`
	PrimaryKey string `json:"primaryKey,omitempty"`

	Method             string                   `json:"method,omitempty"`
	Documents          []content.Document       `json:"documents,omitempty"`
	DocumentIDs        []string                 `json:"documentIds,omitempty"`
	NewSettings        map[string]interface{}   `json:"settings,omitempty"`
	IsDeletion         bool                     `json:"isDeletion,omitempty"`
	AllowIndexCreation bool                     `json:"allowIndexCreation,omitempty"`
	Swaps              []task.IndexSwapPair     `json:"swaps,omitempty"`
	TaskUIDs           []uint32                 `json:"taskUids,omitempty"`
	Query              string                   `json:"query,omitempty"`
	Keys               []string                 `json:"keys,omitempty"`
}

func (req *registerRequest) toKind(contentStore *content.Store) (task.Kind, error) {
	switch req.Kind {
	case "documentAdditionOrUpdate":
		id, w, err := contentStore.NewWriter()
		if err != nil {
			return task.Kind{}, err
		}
		defer w.Close()
		for _, d := range req.Documents {
			if err := content.WriteDocument(w, d); err != nil {
				return task.Kind{}, err
			}
		}
		method := task.ReplaceDocuments
		if req.Method == "update" {
			method = task.UpdateDocuments
		}
		return task.NewDocumentAdditionOrUpdate(task.DocumentAdditionOrUpdate{
			IndexUID:           req.IndexUID,
			PrimaryKey:         req.PrimaryKey,
			Method:             method,
			ContentFile:        id,
			DocumentsCount:     uint64(len(req.Documents)),
			AllowIndexCreation: req.AllowIndexCreation,
		}), nil

	case "documentDeletion":
		return task.NewDocumentDeletion(task.DocumentDeletion{IndexUID: req.IndexUID, DocumentIDs: req.DocumentIDs}), nil

	case "documentClear":
		return task.NewDocumentClear(task.DocumentClear{IndexUID: req.IndexUID}), nil

	case "settingsUpdate":
		return task.NewSettingsUpdate(task.SettingsUpdate{
			IndexUID: req.IndexUID, NewSettings: req.NewSettings,
			IsDeletion: req.IsDeletion, AllowIndexCreation: req.AllowIndexCreation,
		}), nil

	case "indexCreation":
		return task.NewIndexCreation(task.IndexCreation{IndexUID: req.IndexUID, PrimaryKey: req.PrimaryKey}), nil

	case "indexUpdate":
		return task.NewIndexUpdate(task.IndexUpdate{IndexUID: req.IndexUID, PrimaryKey: req.PrimaryKey}), nil

	case "indexDeletion":
		return task.NewIndexDeletion(task.IndexDeletion{IndexUID: req.IndexUID}), nil

	case "indexSwap":
		return task.NewIndexSwap(task.IndexSwap{Swaps: req.Swaps}), nil

	case "taskCancelation":
		return task.NewTaskCancelation(task.TaskCancelation{Query: req.Query, Tasks: bitmap.New(req.TaskUIDs...)}), nil

	case "taskDeletion":
		return task.NewTaskDeletion(task.TaskDeletion{Query: req.Query, Tasks: bitmap.New(req.TaskUIDs...)}), nil

	case "dumpCreation":
		return task.NewDumpCreation(task.DumpCreation{Keys: req.Keys}), nil

	case "snapshot":
		return task.NewSnapshot(), nil

	default:
		return task.Kind{}, fmt.Errorf("unknown kind %q", req.Kind)
	}
}
