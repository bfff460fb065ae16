package models

// Batch operation types.
const (
	BatchCreate = "create"
	BatchUpdate = "update"
	BatchDelete = "delete"
)

// BatchOperation is one entry of a bulk mutation request. For creates,
// TempID lets the caller map its provisional id to the server-assigned one.
type BatchOperation struct {
	Type   string    `json:"type"`
	ID     string    `json:"id,omitempty"`
	TempID string    `json:"temp_id,omitempty"`
	Data   TaskPatch `json:"data"`
}

// BatchRequest is the body of POST /v1/tasks/batch.
type BatchRequest struct {
	Operations []BatchOperation `json:"operations"`
}

// BatchResult reports the outcome of a bulk mutation.
type BatchResult struct {
	Success   bool              `json:"success"`
	IDMapping map[string]string `json:"id_mapping"`
	Skipped   int               `json:"skipped,omitempty"`
}

// FetchFilter narrows a remote fetch. Zero values impose no constraint.
type FetchFilter struct {
	Category  string `json:"category,omitempty" form:"category"`
	DueDate   *Date  `json:"due_date,omitempty"`
	Completed *bool  `json:"completed,omitempty" form:"completed"`
	Upcoming  bool   `json:"upcoming,omitempty" form:"upcoming"`
}

// IsZero reports whether f selects everything.
func (f FetchFilter) IsZero() bool {
	return f.Category == "" && f.DueDate == nil && f.Completed == nil && !f.Upcoming
}

// TaskList is the envelope of GET /v1/tasks.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}
