package models

import "time"

// IndexJob is the persisted record of a background indexing run.
type IndexJob struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	DirPath     string         `json:"dir_path"`
	Force       bool           `json:"force"`
	Prune       bool           `json:"prune"`
	Total       int            `json:"total"`
	Progress    int            `json:"progress"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
