package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/models"
)

// SQLiteStore implements Store using SQLite. Child sets (library→documents,
// document→chunks) are derived from the parent-id columns rather than stored.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS libraries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		index_kind TEXT NOT NULL,
		index_params TEXT,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		library_id TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_library_id ON documents(library_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		library_id TEXT NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_library_id ON chunks(library_id);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveLibrary inserts or replaces a library row.
func (s *SQLiteStore) SaveLibrary(ctx context.Context, lib *models.Library) error {
	params, err := marshalJSON(lib.IndexParams)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(lib.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO libraries (id, name, index_kind, index_params, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		lib.ID.String(), lib.Name, string(lib.IndexKind), params, metadata, lib.CreatedAt,
	)
	return err
}

// GetLibrary returns a library with its document set reconstructed.
func (s *SQLiteStore) GetLibrary(ctx context.Context, id uuid.UUID) (*models.Library, error) {
	var lib models.Library
	var idStr, kind string
	var params, metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, index_kind, index_params, metadata, created_at
		 FROM libraries WHERE id = ?`, id.String(),
	).Scan(&idStr, &lib.Name, &kind, &params, &metadata, &lib.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "library %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	lib.ID = id
	lib.IndexKind = models.IndexKind(kind)
	if lib.IndexParams, err = unmarshalJSON(params); err != nil {
		return nil, err
	}
	if lib.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, err
	}
	lib.Documents = make(map[uuid.UUID]struct{})
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents WHERE library_id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(docID)
		if err != nil {
			return nil, fmt.Errorf("invalid document id in database: %w", err)
		}
		lib.Documents[parsed] = struct{}{}
	}
	return &lib, rows.Err()
}

// ListLibraries returns all libraries ordered by id.
func (s *SQLiteStore) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM libraries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid library id in database: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.Library, 0, len(ids))
	for _, id := range ids {
		lib, err := s.GetLibrary(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, nil
}

// UpdateLibrary replaces a library row.
func (s *SQLiteStore) UpdateLibrary(ctx context.Context, lib *models.Library) error {
	if _, err := s.GetLibrary(ctx, lib.ID); err != nil {
		return err
	}
	return s.SaveLibrary(ctx, lib)
}

// DeleteLibrary removes a library row. Unknown ids are no-ops.
func (s *SQLiteStore) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id.String())
	return err
}

// SaveDocument inserts or replaces a document row.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	metadata, err := marshalJSON(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, library_id, metadata, created_at)
		 VALUES (?, ?, ?, ?)`,
		doc.ID.String(), doc.LibraryID.String(), metadata, doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document with its chunk set reconstructed.
func (s *SQLiteStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	var idStr, libStr string
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, library_id, metadata, created_at FROM documents WHERE id = ?`, id.String(),
	).Scan(&idStr, &libStr, &metadata, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "document %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	doc.ID = id
	if doc.LibraryID, err = uuid.Parse(libStr); err != nil {
		return nil, fmt.Errorf("invalid library id in database: %w", err)
	}
	if doc.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, err
	}
	doc.Chunks = make(map[uuid.UUID]struct{})
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(chunkID)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk id in database: %w", err)
		}
		doc.Chunks[parsed] = struct{}{}
	}
	return &doc, rows.Err()
}

// UpdateDocument replaces a document row.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	if _, err := s.GetDocument(ctx, doc.ID); err != nil {
		return err
	}
	return s.SaveDocument(ctx, doc)
}

// DeleteDocument removes a document row. Unknown ids are no-ops.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	return err
}

// SaveChunk inserts or replaces a chunk row.
func (s *SQLiteStore) SaveChunk(ctx context.Context, chunk *models.Chunk) error {
	metadata, err := marshalJSON(chunk.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, document_id, library_id, text, metadata, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID.String(), chunk.DocumentID.String(), chunk.LibraryID.String(),
		chunk.Text, metadata, float32SliceToBytes(chunk.Embedding), chunk.CreatedAt,
	)
	return err
}

// GetChunk returns a chunk by id.
func (s *SQLiteStore) GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, library_id, text, metadata, embedding, created_at
		 FROM chunks WHERE id = ?`, id.String())
	chunk, err := scanChunk(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "chunk %s not found", id)
	}
	return chunk, err
}

// UpdateChunk replaces a chunk row.
func (s *SQLiteStore) UpdateChunk(ctx context.Context, chunk *models.Chunk) error {
	if _, err := s.GetChunk(ctx, chunk.ID); err != nil {
		return err
	}
	return s.SaveChunk(ctx, chunk)
}

// DeleteChunk removes a chunk row. Unknown ids are no-ops.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id.String())
	return err
}

// ListChunksByLibrary returns all chunks of a library ordered by id.
func (s *SQLiteStore) ListChunksByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, library_id, text, metadata, embedding, created_at
		 FROM chunks WHERE library_id = ? ORDER BY id`, libraryID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// CountLibraries returns the number of libraries.
func (s *SQLiteStore) CountLibraries(ctx context.Context) (int64, error) {
	return s.count(ctx, "libraries")
}

// CountDocuments returns the number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	return s.count(ctx, "documents")
}

// CountChunks returns the number of chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	return s.count(ctx, "chunks")
}

func (s *SQLiteStore) count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanChunk(scan func(dest ...any) error) (*models.Chunk, error) {
	var chunk models.Chunk
	var idStr, docStr, libStr string
	var metadata sql.NullString
	var embedding []byte
	if err := scan(&idStr, &docStr, &libStr, &chunk.Text, &metadata, &embedding, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if chunk.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid chunk id in database: %w", err)
	}
	if chunk.DocumentID, err = uuid.Parse(docStr); err != nil {
		return nil, fmt.Errorf("invalid document id in database: %w", err)
	}
	if chunk.LibraryID, err = uuid.Parse(libStr); err != nil {
		return nil, fmt.Errorf("invalid library id in database: %w", err)
	}
	if chunk.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, err
	}
	chunk.Embedding = bytesToFloat32Slice(embedding)
	return &chunk, nil
}

func marshalJSON(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
