// Package types contains response shapes shared by the service and the API.
package types

// PublishResult reports what happened to a published change envelope.
type PublishResult struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// CompletionAck acknowledges a queued project completion.
type CompletionAck struct {
	JobID     string `json:"job_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
}
