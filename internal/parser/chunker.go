// Package parser turns raw transcript files into titled content,
// intro/outro sections and fixed-size overlapping chunks.
package parser

import "fmt"

// ChunkResult is one window of content with character offsets.
// Start and End are half-open rune offsets into the source text.
type ChunkResult struct {
	Content  string
	Position int
	Start    int
	End      int
}

// ChunkConfig defines window chunking parameters, in characters.
type ChunkConfig struct {
	// Size is the window length.
	Size int
	// Overlap is the number of characters shared by consecutive windows.
	Overlap int
	// SectionSize is the length of the intro and outro sections.
	SectionSize int
}

// DefaultChunkConfig returns 1000-char windows with 200-char overlap
// and 1000-char intro/outro sections.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:        1000,
		Overlap:     200,
		SectionSize: 1000,
	}
}

// Validate requires 0 <= Overlap < Size and a positive section size.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Size, c.Overlap)
	}
	if c.SectionSize <= 0 {
		return fmt.Errorf("section size must be positive, got %d", c.SectionSize)
	}
	return nil
}

// ChunkText splits content into windows of config.Size characters, each
// starting config.Size-config.Overlap characters after the previous one.
// The last window ends exactly at the end of the content and may be shorter.
// Empty content yields no chunks.
func ChunkText(content string, config ChunkConfig) []ChunkResult {
	runes := []rune(content)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := config.Size - config.Overlap
	if step <= 0 {
		step = config.Size
	}

	chunks := make([]ChunkResult, 0, ChunkCount(n, config))
	for start := 0; ; start += step {
		end := min(start+config.Size, n)
		chunks = append(chunks, ChunkResult{
			Content:  string(runes[start:end]),
			Position: len(chunks),
			Start:    start,
			End:      end,
		})
		if end == n {
			break
		}
	}
	return chunks
}

// ChunkCount returns how many windows ChunkText produces for n characters.
func ChunkCount(n int, config ChunkConfig) int {
	if n == 0 {
		return 0
	}
	if n <= config.Size {
		return 1
	}
	step := config.Size - config.Overlap
	return (n - config.Overlap + step - 1) / step
}

// Intro returns the first n characters of content.
func Intro(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n])
}

// Outro returns the last n characters of content.
func Outro(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[len(runes)-n:])
}
