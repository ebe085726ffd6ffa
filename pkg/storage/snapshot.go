package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"time"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/knowledge"
)

// SaveSnapshot replaces the persisted snapshot with the given entries in
// one transaction. Slice order is preserved so a later load rebuilds the
// store with the same insertion order.
func (s *Store) SaveSnapshot(ctx context.Context, entries []knowledge.MemoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "begin snapshot transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_entries"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "clear previous snapshot")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_entries (
			position, id, type, content, source, page_id, file_path, symbol_name,
			tags, relevance, confidence, embedding, access_count,
			created_at, updated_at, expires_at, last_accessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "prepare snapshot insert")
	}
	defer stmt.Close()

	for i, entry := range entries {
		tags, err := json.Marshal(entry.Metadata.Tags)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "encode tags").
				WithContext("id", entry.ID)
		}
		var expiresAt any
		if entry.ExpiresAt != nil {
			expiresAt = *entry.ExpiresAt
		}
		if _, err := stmt.ExecContext(ctx,
			i, entry.ID, string(entry.Type), entry.Content,
			entry.Metadata.Source, entry.Metadata.PageID,
			entry.Metadata.FilePath, entry.Metadata.SymbolName,
			string(tags), entry.Metadata.Relevance, entry.Metadata.Confidence,
			encodeEmbedding(entry.Embedding), entry.AccessCount,
			entry.CreatedAt, entry.UpdatedAt, expiresAt, entry.LastAccessedAt,
		); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "insert snapshot entry").
				WithContext("id", entry.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "commit snapshot")
	}
	return nil
}

// LoadSnapshot reads the persisted entries back in their saved order.
func (s *Store) LoadSnapshot(ctx context.Context) ([]knowledge.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, source, page_id, file_path, symbol_name,
		       tags, relevance, confidence, embedding, access_count,
		       created_at, updated_at, expires_at, last_accessed_at
		FROM knowledge_entries
		ORDER BY position
	`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "query snapshot")
	}
	defer rows.Close()

	var entries []knowledge.MemoryEntry
	for rows.Next() {
		var (
			entry     knowledge.MemoryEntry
			typ       string
			tagsRaw   string
			embedRaw  []byte
			expiresAt sql.NullTime
		)
		if err := rows.Scan(
			&entry.ID, &typ, &entry.Content,
			&entry.Metadata.Source, &entry.Metadata.PageID,
			&entry.Metadata.FilePath, &entry.Metadata.SymbolName,
			&tagsRaw, &entry.Metadata.Relevance, &entry.Metadata.Confidence,
			&embedRaw, &entry.AccessCount,
			&entry.CreatedAt, &entry.UpdatedAt, &expiresAt, &entry.LastAccessedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "scan snapshot entry")
		}

		entry.Type = knowledge.EntryType(typ)
		if tagsRaw != "" {
			if err := json.Unmarshal([]byte(tagsRaw), &entry.Metadata.Tags); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageCorrupt, "decode tags").
					WithContext("id", entry.ID)
			}
		}
		embedding, err := decodeEmbedding(embedRaw)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageCorrupt, "decode embedding").
				WithContext("id", entry.ID)
		}
		entry.Embedding = embedding
		if expiresAt.Valid {
			t := expiresAt.Time
			entry.ExpiresAt = &t
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "iterate snapshot")
	}
	return entries, nil
}

// Count returns how many entries the current snapshot holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_entries").Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "count snapshot entries")
	}
	return n, nil
}

// SavedAt returns the most recent update timestamp in the snapshot, or the
// zero time for an empty snapshot.
func (s *Store) SavedAt(ctx context.Context) (time.Time, error) {
	var saved time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT updated_at FROM knowledge_entries ORDER BY updated_at DESC LIMIT 1").Scan(&saved)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "read snapshot age")
	}
	return saved, nil
}

// encodeEmbedding packs a vector as a length-prefixed big-endian float64
// blob. Empty vectors encode as NULL.
func encodeEmbedding(embedding []float64) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4+len(embedding)*8)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(embedding)))
	for i, v := range embedding {
		binary.BigEndian.PutUint64(buf[4+i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, apperrors.New(apperrors.ErrCodeStorageCorrupt, "embedding blob too short")
	}
	length := int(binary.BigEndian.Uint32(data[:4]))
	if len(data) != 4+length*8 {
		return nil, apperrors.New(apperrors.ErrCodeStorageCorrupt, "embedding blob length mismatch")
	}
	out := make([]float64, length)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(data[4+i*8:]))
	}
	return out, nil
}
