package models

import "time"

// TaskEvent is the Kafka payload announcing a committed change to a user's tasks.
type TaskEvent struct {
	Action     string    `json:"action"` // create, update, delete, batch
	TaskID     string    `json:"task_id,omitempty"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
