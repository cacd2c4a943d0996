package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/podsearch/internal/models"
)

// previewChars is how much content LoadSearchCandidates returns per episode.
// One extra character lets callers tell whether the preview was truncated.
const previewChars = 200

// SearchCandidate is an episode with every vector needed for scoring.
type SearchCandidate struct {
	ID        string
	Title     string
	Head      string // first previewChars+1 characters of content
	TitleVec  []float32
	IntroVec  []float32
	OutroVec  []float32
	ChunkVecs [][]float32
}

// UpsertEpisode replaces an episode and all of its chunks in one transaction.
// Either every row is written or none is.
func (c *Client) UpsertEpisode(ctx context.Context, ep *models.Episode, chunks []models.Chunk) error {
	titleVec, err := encodeVector(ep.TitleEmbedding)
	if err != nil {
		return err
	}
	introVec, err := encodeVector(ep.IntroEmbedding)
	if err != nil {
		return err
	}
	outroVec, err := encodeVector(ep.OutroEmbedding)
	if err != nil {
		return err
	}

	if ep.IndexedAt.IsZero() {
		ep.IndexedAt = time.Now()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO episodes (id, title, content, char_count, content_hash,
			title_embedding, intro_embedding, outro_embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			char_count = excluded.char_count,
			content_hash = excluded.content_hash,
			title_embedding = excluded.title_embedding,
			intro_embedding = excluded.intro_embedding,
			outro_embedding = excluded.outro_embedding,
			indexed_at = excluded.indexed_at`,
		ep.ID, ep.Title, ep.Content, ep.CharCount, ep.ContentHash,
		titleVec, introVec, outroVec, formatTime(ep.IndexedAt))
	if err != nil {
		return fmt.Errorf("upsert episode %s: %w", ep.ID, wrapQueryError(err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE episode_id = ?`, ep.ID); err != nil {
		return fmt.Errorf("clear chunks %s: %w", ep.ID, wrapQueryError(err))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (episode_id, chunk_index, content, char_start, char_end, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		vec, err := encodeVector(ch.Embedding)
		if err != nil {
			return err
		}
		if !vec.Valid {
			return fmt.Errorf("chunk %d of %s has no embedding", ch.Index, ep.ID)
		}
		if _, err := stmt.ExecContext(ctx, ep.ID, ch.Index, ch.Content, ch.CharStart, ch.CharEnd, vec); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", ch.Index, ep.ID, wrapQueryError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert %s: %w", ep.ID, wrapQueryError(err))
	}
	return nil
}

// GetEpisode returns an episode with its section embeddings.
func (c *Client) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	var (
		ep                  models.Episode
		title, intro, outro sql.NullString
		indexedAt           string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, title, content, char_count, content_hash,
			title_embedding, intro_embedding, outro_embedding, indexed_at
		FROM episodes WHERE id = ?`, id).
		Scan(&ep.ID, &ep.Title, &ep.Content, &ep.CharCount, &ep.ContentHash,
			&title, &intro, &outro, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}

	if ep.TitleEmbedding, err = decodeVector(title); err != nil {
		return nil, fmt.Errorf("episode %s title: %w", id, err)
	}
	if ep.IntroEmbedding, err = decodeVector(intro); err != nil {
		return nil, fmt.Errorf("episode %s intro: %w", id, err)
	}
	if ep.OutroEmbedding, err = decodeVector(outro); err != nil {
		return nil, fmt.Errorf("episode %s outro: %w", id, err)
	}
	ep.IndexedAt = parseTime(indexedAt)
	return &ep, nil
}

// EpisodeFingerprint returns the stored title and content hash of an episode.
// ok is false when the episode is not indexed.
func (c *Client) EpisodeFingerprint(ctx context.Context, id string) (title, hash string, ok bool, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT title, content_hash FROM episodes WHERE id = ?`, id).Scan(&title, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("fingerprint %s: %w", id, err)
	}
	return title, hash, true, nil
}

// GetChunks returns an episode's chunks ordered by index.
func (c *Client) GetChunks(ctx context.Context, episodeID string) ([]models.Chunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT chunk_index, content, char_start, char_end, embedding
		FROM chunks WHERE episode_id = ? ORDER BY chunk_index`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("get chunks %s: %w", episodeID, err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		ch := models.Chunk{EpisodeID: episodeID}
		var vec sql.NullString
		if err := rows.Scan(&ch.Index, &ch.Content, &ch.CharStart, &ch.CharEnd, &vec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if ch.Embedding, err = decodeVector(vec); err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %w", ch.Index, episodeID, err)
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// ListEpisodes returns summaries of all episodes ordered by title.
func (c *Client) ListEpisodes(ctx context.Context) ([]models.EpisodeSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT e.id, e.title, e.char_count, e.indexed_at,
			(SELECT COUNT(*) FROM chunks ch WHERE ch.episode_id = e.id)
		FROM episodes e ORDER BY e.title, e.id`)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []models.EpisodeSummary
	for rows.Next() {
		var s models.EpisodeSummary
		var indexedAt string
		if err := rows.Scan(&s.ID, &s.Title, &s.CharCount, &indexedAt, &s.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		s.IndexedAt = parseTime(indexedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListEpisodeIDs returns every stored episode ID.
func (c *Client) ListEpisodeIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM episodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list episode ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountChunks returns the number of chunks stored for an episode.
func (c *Client) CountChunks(ctx context.Context, episodeID string) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE episode_id = ?`, episodeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks %s: %w", episodeID, err)
	}
	return n, nil
}

// DeleteEpisode removes an episode; its chunks cascade.
func (c *Client) DeleteEpisode(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete episode %s: %w", id, wrapQueryError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("episode %q: %w", id, ErrNotFound)
	}
	return nil
}

// LoadSearchCandidates returns every episode with its section and chunk vectors.
// Chunk vectors are ordered by chunk index.
func (c *Client) LoadSearchCandidates(ctx context.Context) ([]SearchCandidate, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, substr(content, 1, %d),
			title_embedding, intro_embedding, outro_embedding
		FROM episodes ORDER BY id`, previewChars+1))
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}

	var candidates []SearchCandidate
	index := make(map[string]int)
	for rows.Next() {
		var cand SearchCandidate
		var title, intro, outro sql.NullString
		if err := rows.Scan(&cand.ID, &cand.Title, &cand.Head, &title, &intro, &outro); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if cand.TitleVec, err = decodeVector(title); err != nil {
			rows.Close()
			return nil, fmt.Errorf("episode %s title: %w", cand.ID, err)
		}
		if cand.IntroVec, err = decodeVector(intro); err != nil {
			rows.Close()
			return nil, fmt.Errorf("episode %s intro: %w", cand.ID, err)
		}
		if cand.OutroVec, err = decodeVector(outro); err != nil {
			rows.Close()
			return nil, fmt.Errorf("episode %s outro: %w", cand.ID, err)
		}
		index[cand.ID] = len(candidates)
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	chunkRows, err := c.db.QueryContext(ctx, `
		SELECT episode_id, embedding FROM chunks ORDER BY episode_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("load chunk vectors: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var episodeID string
		var raw sql.NullString
		if err := chunkRows.Scan(&episodeID, &raw); err != nil {
			return nil, fmt.Errorf("scan chunk vector: %w", err)
		}
		i, ok := index[episodeID]
		if !ok {
			continue
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("episode %s chunk: %w", episodeID, err)
		}
		candidates[i].ChunkVecs = append(candidates[i].ChunkVecs, vec)
	}
	return candidates, chunkRows.Err()
}

// Stats returns counts across the store.
func (c *Client) Stats(ctx context.Context) (models.StoreStats, error) {
	var s models.StoreStats
	var last sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM episodes),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COALESCE(SUM(char_count), 0) FROM episodes),
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM chat_messages),
			(SELECT MAX(indexed_at) FROM episodes)`).
		Scan(&s.Episodes, &s.Chunks, &s.TotalChars, &s.Sessions, &s.Messages, &last)
	if err != nil {
		return models.StoreStats{}, fmt.Errorf("stats: %w", err)
	}
	s.LastIndexed = parseNullTime(last)
	return s, nil
}
