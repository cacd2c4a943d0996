// Package service implements indexing, search and chat over podcast transcripts.
package service

import (
	"context"

	"github.com/raphaelgruber/podsearch/internal/models"
)

// Embedder turns text into a fixed-length vector.
// Failures wrap models.ErrProvider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces chat replies. Failures wrap models.ErrProvider.
type Generator interface {
	GenerateWithHistory(ctx context.Context, systemPrompt string, history []models.Message, prompt string) (string, error)
	StreamWithHistory(ctx context.Context, systemPrompt string, history []models.Message, prompt string, onToken func(string) error) (string, error)
}

// SessionStore persists chat sessions. Implementations are safe for concurrent use.
type SessionStore interface {
	// GetSession returns models.ErrNotFound when the session does not exist.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	// DeleteSession returns models.ErrNotFound when the session does not exist.
	DeleteSession(ctx context.Context, id string) error
}
