package models

import "encoding/json"

// TaskStatus represents the lifecycle status of an asynchronous task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further status transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskUpdate is one server-pushed notification about an asynchronous task.
// Many updates may arrive for the same TaskID over time; consumers keep only
// the most recent one per id.
type TaskUpdate struct {
	TaskID   int64           `json:"task_id"`
	TaskType string          `json:"task_type"`
	Status   TaskStatus      `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Progress *int            `json:"progress,omitempty"`
}
