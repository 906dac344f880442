package model

import "time"

// Generation is one user-initiated batch of produced images.
type Generation struct {
	ID        string    `db:"id" json:"id"`
	UserEmail string    `db:"user_email" json:"user_email"`
	Prompt    string    `db:"prompt" json:"prompt"`
	Scene     string    `db:"scene" json:"scene"`
	Images    []string  `db:"images" json:"images"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GenerationSummary is a history row without image payloads.
type GenerationSummary struct {
	ID        string    `db:"id" json:"id"`
	Prompt    string    `db:"prompt" json:"prompt"`
	Scene     string    `db:"scene" json:"scene"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
