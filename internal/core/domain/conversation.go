package domain

import "time"

// ConversationTurn is immutable once recorded.
type ConversationTurn struct {
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Entities struct {
	Crops   []string `json:"crops"`
	Schemes []string `json:"schemes"`
	States  []string `json:"states"`
}

type ChatAnswer struct {
	SessionID string   `json:"session_id"`
	Route     Route    `json:"route"`
	Answer    string   `json:"answer"`
	Entities  Entities `json:"entities"`
}

// ArchivedTurn is the durable copy of a turn written to the transcript archive.
type ArchivedTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Route     Route     `json:"route"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}
