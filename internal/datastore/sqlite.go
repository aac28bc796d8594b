package datastore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// sqliteStore is the relational layer behind the datastore contract
// (spec.md §4.9): memories, entities, relations, code chunks/symbols/
// references, file hashes, and index statuses. Grounded on the teacher's
// telemetry store (internal/telemetry/store.go) for the database/sql +
// prepared-statement + transaction idiom, using modernc.org/sqlite (pure
// Go) instead of the teacher's CGO mattn/go-sqlite3 driver — see
// DESIGN.md's "Dropped teacher dependencies" entry.
type sqliteStore struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Database, err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// --- time helpers ---

func toNanos(t time.Time) int64 { return t.UnixNano() }
func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func toNanosPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanosPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

// --- embedding (de)serialization: little-endian float32 packing, the same
// wire shape internal/cache uses for its bbolt values. ---

func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMetadata(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// --- memories ---

func (s *sqliteStore) SaveMemory(ctx context.Context, m *types.Memory) error {
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return errs.Wrap(errs.InvalidInput, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, embedding, kind, user_id, metadata, event_time_ns,
			ingestion_time_ns, valid_from_ns, valid_until_ns, importance, invalidation_reason,
			content_hash, embedding_state, entity_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, embedding=excluded.embedding, kind=excluded.kind,
			user_id=excluded.user_id, metadata=excluded.metadata, event_time_ns=excluded.event_time_ns,
			valid_from_ns=excluded.valid_from_ns, valid_until_ns=excluded.valid_until_ns,
			importance=excluded.importance, invalidation_reason=excluded.invalidation_reason,
			content_hash=excluded.content_hash, embedding_state=excluded.embedding_state,
			entity_id=excluded.entity_id
	`,
		m.ID, m.Content, encodeEmbedding(m.Embedding), string(m.Kind), m.UserID, meta,
		toNanos(m.EventTime), toNanos(m.IngestionTime), toNanos(m.ValidFrom), toNanosPtr(m.ValidUntil),
		m.Importance, m.InvalidationReason, m.ContentHash, string(m.EmbeddingState), m.EntityID,
	)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

const memoryColumns = `id, content, embedding, kind, user_id, metadata,
		event_time_ns, ingestion_time_ns, valid_from_ns, valid_until_ns, importance,
		invalidation_reason, content_hash, embedding_state, entity_id`

func (s *sqliteStore) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

func (s *sqliteStore) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) ListMemories(ctx context.Context, userID string, limit, offset int) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories
		WHERE (? = '' OR user_id = ?) ORDER BY ingestion_time_ns DESC LIMIT ? OFFSET ?`, userID, userID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetValid returns memories valid as of now (spec.md §4.9 get_valid).
func (s *sqliteStore) GetValid(ctx context.Context, userID string, limit int) ([]*types.Memory, error) {
	return s.GetValidAt(ctx, time.Now(), userID, limit)
}

// GetValidAt returns memories valid as of asOf (spec.md §4.9 get_valid_at).
func (s *sqliteStore) GetValidAt(ctx context.Context, asOf time.Time, userID string, limit int) ([]*types.Memory, error) {
	ns := toNanos(asOf)
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories
		WHERE valid_from_ns <= ? AND (valid_until_ns IS NULL OR valid_until_ns > ?)
		AND (? = '' OR user_id = ?)
		ORDER BY ingestion_time_ns DESC LIMIT ?`, ns, ns, userID, userID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Invalidate sets valid_until=now (spec.md §4.9 invalidate).
func (s *sqliteStore) Invalidate(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET valid_until_ns = ?, invalidation_reason = ?
		WHERE id = ? AND valid_until_ns IS NULL`, toNanos(time.Now()), reason, id)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) BatchUpdateMemoryEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET embedding = ?, embedding_state = 'ready' WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, encodeEmbedding(vectors[i]), id); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanMemory(row *sql.Row) (*types.Memory, error) {
	var m types.Memory
	var embedding []byte
	var meta sql.NullString
	var eventNs, ingestNs, fromNs int64
	var untilNs sql.NullInt64
	var kind, state string

	err := row.Scan(&m.ID, &m.Content, &embedding, &kind, &m.UserID, &meta, &eventNs, &ingestNs,
		&fromNs, &untilNs, &m.Importance, &m.InvalidationReason, &m.ContentHash, &state, &m.EntityID)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "memory not found", nil)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}

	m.Embedding = decodeEmbedding(embedding)
	m.Kind = types.MemoryKind(kind)
	m.EmbeddingState = types.EmbeddingState(state)
	m.EventTime = fromNanos(eventNs)
	m.IngestionTime = fromNanos(ingestNs)
	m.ValidFrom = fromNanos(fromNs)
	m.ValidUntil = fromNanosPtr(untilNs)
	if m.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, errs.Wrap(errs.Internal, err)
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*types.Memory, error) {
	var out []*types.Memory
	for rows.Next() {
		var m types.Memory
		var embedding []byte
		var meta sql.NullString
		var eventNs, ingestNs, fromNs int64
		var untilNs sql.NullInt64
		var kind, state string

		if err := rows.Scan(&m.ID, &m.Content, &embedding, &kind, &m.UserID, &meta, &eventNs, &ingestNs,
			&fromNs, &untilNs, &m.Importance, &m.InvalidationReason, &m.ContentHash, &state, &m.EntityID); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		m.Embedding = decodeEmbedding(embedding)
		m.Kind = types.MemoryKind(kind)
		m.EmbeddingState = types.EmbeddingState(state)
		m.EventTime = fromNanos(eventNs)
		m.IngestionTime = fromNanos(ingestNs)
		m.ValidFrom = fromNanos(fromNs)
		m.ValidUntil = fromNanosPtr(untilNs)
		var err error
		if m.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, errs.Wrap(errs.Internal, err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return tx.Commit()
}

// --- entities / relations ---

func (s *sqliteStore) SaveEntity(ctx context.Context, e *types.Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, entity_type, description, embedding, user_id, created_at_ns)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, entity_type=excluded.entity_type,
			description=excluded.description, embedding=excluded.embedding, user_id=excluded.user_id
	`, e.ID, e.Name, e.EntityType, e.Description, encodeEmbedding(e.Embedding), e.UserID, toNanos(e.CreatedAt))
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	var e types.Entity
	var embedding []byte
	var createdNs int64
	err := s.db.QueryRowContext(ctx, `SELECT id, name, entity_type, description, embedding, user_id, created_at_ns
		FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.EntityType, &e.Description, &embedding, &e.UserID, &createdNs)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "entity not found", nil)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	e.Embedding = decodeEmbedding(embedding)
	e.CreatedAt = fromNanos(createdNs)
	return &e, nil
}

func (s *sqliteStore) SaveRelation(ctx context.Context, r *types.Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relations (id, from_entity, to_entity, relation_type, weight, valid_from_ns, valid_until_ns)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET weight=excluded.weight, valid_until_ns=excluded.valid_until_ns
	`, r.ID, r.FromEntity, r.ToEntity, r.RelationType, r.Weight, toNanos(r.ValidFrom), toNanosPtr(r.ValidUntil))
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

// neighborsOf fetches the live relation neighbors of ids in one query per
// direction, one BFS level at a time: Store.GetRelated (spec.md
// §4.9/§4.12) wraps it as the NeighborFetcher internal/graphcore.BoundedBFS
// expects.
func (s *sqliteStore) neighborsOf(ctx context.Context, ids []string, dir relationDirection) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		out[id] = nil
	}
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]any, 0, len(ids))
	inClause := ""
	for i, id := range ids {
		if i > 0 {
			inClause += ","
		}
		inClause += "?"
		placeholders = append(placeholders, id)
	}

	now := toNanos(time.Now())

	query := func(col, otherCol string) error {
		q := fmt.Sprintf(`SELECT %s, %s FROM relations WHERE %s IN (%s) AND (valid_until_ns IS NULL OR valid_until_ns > ?)`,
			col, otherCol, col, inClause)
		args := append(append([]any{}, placeholders...), now)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var from, to string
			if err := rows.Scan(&from, &to); err != nil {
				return err
			}
			out[from] = append(out[from], to)
		}
		return rows.Err()
	}

	switch dir {
	case relationOutgoing:
		if err := query("from_entity", "to_entity"); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
	case relationIncoming:
		if err := query("to_entity", "from_entity"); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
	case relationBoth:
		if err := query("from_entity", "to_entity"); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		if err := query("to_entity", "from_entity"); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
	}
	return out, nil
}

type relationDirection int

const (
	relationOutgoing relationDirection = iota
	relationIncoming
	relationBoth
)

// subgraphEdges returns the relations whose both endpoints are in ids, the
// edge half of get_subgraph (spec.md §4.9); Store.GetSubgraph adds the nodes.
func (s *sqliteStore) subgraphEdges(ctx context.Context, ids []string) ([]types.Relation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]any, 0, len(ids)*2)
	inClause := ""
	for i, id := range ids {
		if i > 0 {
			inClause += ","
		}
		inClause += "?"
		placeholders = append(placeholders, id)
	}
	args := append(append([]any{}, placeholders...), placeholders...)

	q := fmt.Sprintf(`SELECT id, from_entity, to_entity, relation_type, weight, valid_from_ns, valid_until_ns
		FROM relations WHERE from_entity IN (%s) AND to_entity IN (%s)`, inClause, inClause)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()

	var out []types.Relation
	for rows.Next() {
		var r types.Relation
		var fromNs int64
		var untilNs sql.NullInt64
		if err := rows.Scan(&r.ID, &r.FromEntity, &r.ToEntity, &r.RelationType, &r.Weight, &fromNs, &untilNs); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		r.ValidFrom = fromNanos(fromNs)
		r.ValidUntil = fromNanosPtr(untilNs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// entityIDsForMemories resolves the subset of memoryIDs that carry a
// non-empty entity_id, returning those entity IDs (deduplicated). Used to
// seed the subgraph join for hybrid recall (spec.md §4.13 step 3).
func (s *sqliteStore) entityIDsForMemories(ctx context.Context, memoryIDs []string) ([]string, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]any, 0, len(memoryIDs))
	inClause := ""
	for i, id := range memoryIDs {
		if i > 0 {
			inClause += ","
		}
		inClause += "?"
		placeholders = append(placeholders, id)
	}

	q := fmt.Sprintf(`SELECT DISTINCT entity_id FROM memories WHERE id IN (%s) AND entity_id != ''`, inClause)
	rows, err := s.db.QueryContext(ctx, q, placeholders...)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- code chunks / symbols / symbol relations / file hashes ---

func (s *sqliteStore) SaveCodeChunk(ctx context.Context, c *types.CodeChunk) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_chunks (id, file_path, content, language, start_line, end_line, chunk_type,
			name, embedding, content_hash, project_id, indexed_at_ns)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, start_line=excluded.start_line, end_line=excluded.end_line,
			chunk_type=excluded.chunk_type, name=excluded.name, embedding=excluded.embedding,
			content_hash=excluded.content_hash, indexed_at_ns=excluded.indexed_at_ns
	`, c.ID, c.FilePath, c.Content, c.Language, c.StartLine, c.EndLine, string(c.ChunkType),
		c.Name, encodeEmbedding(c.Embedding), c.ContentHash, c.ProjectID, toNanos(c.IndexedAt))
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) DeleteCodeChunksForFile(ctx context.Context, projectID, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM code_chunks WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) ChunksByProject(ctx context.Context, projectID string) ([]*types.CodeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_path, content, language, start_line, end_line,
		chunk_type, name, embedding, content_hash, project_id, indexed_at_ns
		FROM code_chunks WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()

	var out []*types.CodeChunk
	for rows.Next() {
		var c types.CodeChunk
		var embedding []byte
		var chunkType string
		var indexedNs int64
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Content, &c.Language, &c.StartLine, &c.EndLine,
			&chunkType, &c.Name, &embedding, &c.ContentHash, &c.ProjectID, &indexedNs); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		c.ChunkType = types.ChunkType(chunkType)
		c.Embedding = decodeEmbedding(embedding)
		c.IndexedAt = fromNanos(indexedNs)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) getChunk(ctx context.Context, id string) (types.CodeChunk, bool, error) {
	var c types.CodeChunk
	var embedding []byte
	var chunkType string
	var indexedNs int64
	err := s.db.QueryRowContext(ctx, `SELECT id, file_path, content, language, start_line, end_line,
		chunk_type, name, embedding, content_hash, project_id, indexed_at_ns
		FROM code_chunks WHERE id = ?`, id).
		Scan(&c.ID, &c.FilePath, &c.Content, &c.Language, &c.StartLine, &c.EndLine,
			&chunkType, &c.Name, &embedding, &c.ContentHash, &c.ProjectID, &indexedNs)
	if err == sql.ErrNoRows {
		return types.CodeChunk{}, false, nil
	}
	if err != nil {
		return types.CodeChunk{}, false, errs.Wrap(errs.Database, err)
	}
	c.ChunkType = types.ChunkType(chunkType)
	c.Embedding = decodeEmbedding(embedding)
	c.IndexedAt = fromNanos(indexedNs)
	return c, true, nil
}

func (s *sqliteStore) BatchUpdateChunkEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE code_chunks SET embedding = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, encodeEmbedding(vectors[i]), id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) BatchUpdateSymbolEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE code_symbols SET embedding = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, encodeEmbedding(vectors[i]), id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) SaveCodeSymbol(ctx context.Context, sym *types.CodeSymbol) error {
	sig := sym.Signature
	if len(sig) > types.MaxSignatureLen {
		sig = sig[:types.MaxSignatureLen]
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_symbols (id, name, symbol_type, file_path, start_line, end_line, project_id,
			signature, embedding)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, symbol_type=excluded.symbol_type, start_line=excluded.start_line,
			end_line=excluded.end_line, signature=excluded.signature, embedding=excluded.embedding
	`, sym.ID, sym.Name, string(sym.SymbolType), sym.FilePath, sym.StartLine, sym.EndLine,
		sym.ProjectID, sig, encodeEmbedding(sym.Embedding))
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) DeleteSymbolsForFile(ctx context.Context, projectID, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM code_symbols WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

// FindSymbolByNameWithContext resolves name to its best candidate symbol
// within project_id (spec.md §4.9 find_symbol_by_name_with_context): exact
// match in preferFile wins outright; otherwise the first match by name,
// preferring the same directory as preferFile when more than one exists.
func (s *sqliteStore) FindSymbolByNameWithContext(ctx context.Context, projectID, name, preferFile string) (*types.CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, symbol_type, file_path, start_line, end_line,
		project_id, signature, embedding FROM code_symbols WHERE project_id = ? AND name = ?`, projectID, name)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()

	var candidates []*types.CodeSymbol
	for rows.Next() {
		var sym types.CodeSymbol
		var symbolType string
		var embedding []byte
		if err := rows.Scan(&sym.ID, &sym.Name, &symbolType, &sym.FilePath, &sym.StartLine, &sym.EndLine,
			&sym.ProjectID, &sym.Signature, &embedding); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		sym.SymbolType = types.SymbolType(symbolType)
		sym.Embedding = decodeEmbedding(embedding)
		candidates = append(candidates, &sym)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	if len(candidates) == 0 {
		return nil, errs.New(errs.NotFound, "symbol not found", nil).WithDetail("name", name)
	}

	best := candidates[0]
	bestScore := -1
	for _, c := range candidates {
		score := 0
		if preferFile != "" {
			if c.FilePath == preferFile {
				score = 100
			} else if filepath.Dir(c.FilePath) == filepath.Dir(preferFile) {
				score = 50
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, nil
}

func (s *sqliteStore) SaveSymbolRelation(ctx context.Context, r *types.SymbolRelation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbol_relations (id, from_symbol, to_symbol, relation_type, file_path,
			line_number, project_id, created_at_ns)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.FromSymbol, r.ToSymbol, string(r.RelationType), r.FilePath, r.LineNumber,
		r.ProjectID, toNanos(r.CreatedAt))
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) SetFileHash(ctx context.Context, projectID, filePath, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_hashes (project_id, file_path, content_hash) VALUES (?,?,?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET content_hash=excluded.content_hash
	`, projectID, filePath, hash)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) FileHash(ctx context.Context, projectID, filePath string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT content_hash FROM file_hashes WHERE project_id = ? AND file_path = ?`,
		projectID, filePath).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Database, err)
	}
	return hash, true, nil
}

func (s *sqliteStore) DeleteFileHash(ctx context.Context, projectID, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_hashes WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

// --- index statuses / project lifecycle ---

func (s *sqliteStore) SaveIndexStatus(ctx context.Context, st *types.IndexStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_statuses (project_id, state, total_files, indexed_files, total_chunks,
			total_symbols, started_at_ns, completed_at_ns, error_message)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(project_id) DO UPDATE SET
			state=excluded.state, total_files=excluded.total_files, indexed_files=excluded.indexed_files,
			total_chunks=excluded.total_chunks, total_symbols=excluded.total_symbols,
			completed_at_ns=excluded.completed_at_ns, error_message=excluded.error_message
	`, st.ProjectID, string(st.State), st.TotalFiles, st.IndexedFiles, st.TotalChunks, st.TotalSymbols,
		toNanos(st.StartedAt), toNanosPtr(st.CompletedAt), st.ErrorMessage)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func (s *sqliteStore) GetIndexStatus(ctx context.Context, projectID string) (*types.IndexStatus, error) {
	var st types.IndexStatus
	var state string
	var startedNs int64
	var completedNs sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT project_id, state, total_files, indexed_files, total_chunks,
		total_symbols, started_at_ns, completed_at_ns, error_message FROM index_statuses WHERE project_id = ?`,
		projectID).Scan(&st.ProjectID, &state, &st.TotalFiles, &st.IndexedFiles, &st.TotalChunks,
		&st.TotalSymbols, &startedNs, &completedNs, &st.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "index status not found", nil)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	st.State = types.IndexState(state)
	st.StartedAt = fromNanos(startedNs)
	st.CompletedAt = fromNanosPtr(completedNs)
	return &st, nil
}

func (s *sqliteStore) ListProjects(ctx context.Context) ([]*types.IndexStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, state, total_files, indexed_files, total_chunks,
		total_symbols, started_at_ns, completed_at_ns, error_message FROM index_statuses ORDER BY project_id`)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err)
	}
	defer rows.Close()

	var out []*types.IndexStatus
	for rows.Next() {
		var st types.IndexStatus
		var state string
		var startedNs int64
		var completedNs sql.NullInt64
		if err := rows.Scan(&st.ProjectID, &state, &st.TotalFiles, &st.IndexedFiles, &st.TotalChunks,
			&st.TotalSymbols, &startedNs, &completedNs, &st.ErrorMessage); err != nil {
			return nil, errs.Wrap(errs.Database, err)
		}
		st.State = types.IndexState(state)
		st.StartedAt = fromNanos(startedNs)
		st.CompletedAt = fromNanosPtr(completedNs)
		out = append(out, &st)
	}
	return out, rows.Err()
}

// CompletionCounts reports (embedded_chunks, embedded_symbols) alongside the
// already-tracked totals, for the completion monitor (spec.md §4.11).
func (s *sqliteStore) CompletionCounts(ctx context.Context, projectID string) (embeddedChunks, embeddedSymbols int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM code_chunks WHERE project_id = ? AND embedding IS NOT NULL),
		(SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND embedding IS NOT NULL)`,
		projectID, projectID)
	if scanErr := row.Scan(&embeddedChunks, &embeddedSymbols); scanErr != nil {
		return 0, 0, errs.Wrap(errs.Database, scanErr)
	}
	return embeddedChunks, embeddedSymbols, nil
}

func (s *sqliteStore) DeleteProject(ctx context.Context, projectID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM code_chunks WHERE project_id = ?`,
			`DELETE FROM code_symbols WHERE project_id = ?`,
			`DELETE FROM symbol_relations WHERE project_id = ?`,
			`DELETE FROM file_hashes WHERE project_id = ?`,
			`DELETE FROM index_statuses WHERE project_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- dimension handshake state ---

func (s *sqliteStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Database, err)
	}
	return value, true, nil
}

func (s *sqliteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_state (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

// ResetDB drops and recreates every table (spec.md §4.9 reset_db).
func (s *sqliteStore) ResetDB(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		tables := []string{"memories", "entities", "relations", "code_chunks", "code_symbols",
			"symbol_relations", "file_hashes", "index_statuses", "index_state"}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}
