package models

// Chunk is a fixed-size overlapping window of an episode's content.
// CharStart and CharEnd are character offsets into the full content,
// half-open: Content == []rune(episode.Content)[CharStart:CharEnd].
type Chunk struct {
	EpisodeID string    `json:"episode_id"`
	Index     int       `json:"chunk_index"`
	Content   string    `json:"content"`
	CharStart int       `json:"char_start"`
	CharEnd   int       `json:"char_end"`
	Embedding []float32 `json:"-"`
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return c.CharEnd - c.CharStart
}
