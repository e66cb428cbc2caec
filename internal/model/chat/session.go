package chat

import "time"

// Session captures a transient anonymous conversation.
type Session struct {
	ID           string    `json:"id"`
	PersonaID    string    `json:"personaId"`
	Language     string    `json:"language,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}
