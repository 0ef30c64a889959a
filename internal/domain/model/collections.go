package model

import "time"

// Feed source names of the collections mirrored into a user's live view.
const (
	SourceSkills        = "skills"
	SourceProjects      = "projects"
	SourceMessages      = "messages"
	SourceNotifications = "notifications"
)

// Message is a chat message mirrored into the user's live view.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the record identity used by projections.
func (m Message) Key() string { return m.ID }

// Notification is a user-facing notice mirrored into the user's live view.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the record identity used by projections.
func (n Notification) Key() string { return n.ID }
