package backend

import (
	"encoding/json"

	"github.com/numera-app/numera/internal/task"
)

// envelope is the wire shape of every backend response. A non-empty message
// with a null result signals failure; some polls pair an informational
// message with a live result.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// TaskList is the backend's view of currently known async tasks.
type TaskList struct {
	Pending   []task.ID `json:"pending"`
	Completed []task.ID `json:"completed"`
}

// TaskStatus values reported for a single polled task.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusNotFound  = "not-found"
)

type taskResult struct {
	Status  string        `json:"status"`
	Outcome *task.Outcome `json:"outcome"`
}

type startResult struct {
	TaskID task.ID `json:"task_id"`
}

// Messages is one destructively-read batch of user-facing backend messages.
// The backend never returns the same message twice.
type Messages struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (m Messages) Empty() bool {
	return len(m.Errors) == 0 && len(m.Warnings) == 0
}
