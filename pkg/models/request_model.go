package models

type Request struct {
	ID        int        `json:"id" form:"id" db:"id"`
	Email     string     `json:"email" form:"email" db:"email"`
	Status    TaskStatus `json:"status" form:"status" db:"status"`
	SourceURL string     `json:"source_url" form:"source_url" db:"source_url"`
	ResultURL string     `json:"result_url" form:"result_url" db:"result_url"`
	Archived  string     `json:"archived" form:"archived" db:"archived"`
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)
