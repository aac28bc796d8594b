// Package datastore implements the persistent store contract (spec.md
// §4.9): sqlite-backed CRUD for every record type, coder/hnsw vector
// search, bleve BM25 lexical search, and graph traversal assembled from the
// relations table, wired together behind a single Store.
package datastore

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/graphcore"
	"github.com/amanmcp-labs/memoryd/internal/retrieval"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// Store wires the relational, vector, and lexical layers into the full
// datastore contract. It satisfies retrieval.VectorStore, LexicalStore, and
// GraphStore directly, so a Recaller can be built from one *Store.
type Store struct {
	sql *sqliteStore

	memVectors  *vectorIndex
	codeVectors *vectorIndex
	memText     *textIndex
	codeText    *textIndex
}

// Open opens (creating if necessary) the sqlite database at path and builds
// fresh in-memory vector/text indexes over its contents, performing the
// dimension handshake spec.md §4.9 requires: if the stored vector dimension
// disagrees with dimensions, every vector index is rebuilt empty and every
// embedding_state is marked stale for asynchronous recomputation.
func Open(ctx context.Context, path string, dimensions int, modelName string) (*Store, error) {
	sqlStore, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		sql:         sqlStore,
		memVectors:  newVectorIndex(dimensions),
		codeVectors: newVectorIndex(dimensions),
	}
	if s.memText, err = newTextIndex(); err != nil {
		sqlStore.Close()
		return nil, errs.Wrap(errs.Internal, err)
	}
	if s.codeText, err = newTextIndex(); err != nil {
		sqlStore.Close()
		return nil, errs.Wrap(errs.Internal, err)
	}

	if err := s.reconcileDimensions(ctx, dimensions, modelName); err != nil {
		sqlStore.Close()
		return nil, err
	}
	if err := s.rebuildIndexes(ctx); err != nil {
		sqlStore.Close()
		return nil, err
	}
	return s, nil
}

// reconcileDimensions implements the dimension handshake: on mismatch
// between the stored dimension/model and the current ones, every existing
// embedding is marked stale so a later embedding pass recomputes it at the
// new dimension. The in-memory vector indexes are always rebuilt fresh on
// open regardless (they hold no state across process restarts), so only the
// staleness bookkeeping needs to happen here.
func (s *Store) reconcileDimensions(ctx context.Context, dimensions int, modelName string) error {
	storedDim, ok, err := s.sql.GetState(ctx, stateKeyVectorDimension)
	if err != nil {
		return err
	}
	storedModel, _, err := s.sql.GetState(ctx, stateKeyVectorModel)
	if err != nil {
		return err
	}

	mismatch := !ok || storedDim != strconv.Itoa(dimensions) || storedModel != modelName
	if mismatch {
		if err := s.sql.markAllEmbeddingsStale(ctx); err != nil {
			return err
		}
		if err := s.sql.SetState(ctx, stateKeyVectorDimension, strconv.Itoa(dimensions)); err != nil {
			return err
		}
		if err := s.sql.SetState(ctx, stateKeyVectorModel, modelName); err != nil {
			return err
		}
	}
	return nil
}

// rebuildIndexes loads every ready embedding from sqlite into the in-memory
// vector and text indexes, since both are process-local and empty on open.
func (s *Store) rebuildIndexes(ctx context.Context) error {
	memories, err := s.sql.ListMemories(ctx, "", -1, 0) // SQLite treats LIMIT -1 as unbounded
	if err != nil {
		return err
	}
	for _, m := range memories {
		if m.EmbeddingState == types.EmbeddingReady && len(m.Embedding) == s.memVectors.Dimensions() {
			if err := s.memVectors.Add(ctx, m.ID, m.Embedding); err != nil {
				return err
			}
		}
		var until int64
		if m.ValidUntil != nil {
			until = m.ValidUntil.UnixNano()
		}
		if err := s.memText.Put(m.ID, m.Content, until); err != nil {
			return errs.Wrap(errs.Internal, err)
		}
	}

	projects, err := s.sql.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		chunks, err := s.sql.ChunksByProject(ctx, p.ProjectID)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			if len(c.Embedding) == s.codeVectors.Dimensions() {
				if err := s.codeVectors.Add(ctx, c.ID, c.Embedding); err != nil {
					return err
				}
			}
			if err := s.codeText.Put(c.ID, c.Content, 0); err != nil {
				return errs.Wrap(errs.Internal, err)
			}
		}
	}
	return nil
}

// markAllEmbeddingsStale implements the dimension-handshake rebuild (spec.md
// §4.9): memories keep their embedding_state column and are simply flagged
// stale; code chunks/symbols have no such column, so their embedding blobs
// are cleared outright — the completion monitor (spec.md §4.11) then sees
// them as not-yet-embedded and the adaptive queue re-enqueues them.
func (s *sqliteStore) markAllEmbeddingsStale(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`UPDATE memories SET embedding_state = 'stale' WHERE embedding_state = 'ready'`,
			`UPDATE code_chunks SET embedding = NULL WHERE embedding IS NOT NULL`,
			`UPDATE code_symbols SET embedding = NULL WHERE embedding IS NOT NULL`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close flushes and releases the underlying sqlite connection (spec.md
// §4.9 shutdown).
func (s *Store) Close() error {
	return s.sql.Close()
}

// HealthCheck pings the underlying database (spec.md §4.9 health_check).
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.sql.HealthCheck(ctx)
}

// ResetDB clears every table and in-memory index (spec.md §4.9 reset_db).
func (s *Store) ResetDB(ctx context.Context) error {
	if err := s.sql.ResetDB(ctx); err != nil {
		return err
	}
	s.memVectors = newVectorIndex(s.memVectors.Dimensions())
	s.codeVectors = newVectorIndex(s.codeVectors.Dimensions())
	memText, err := newTextIndex()
	if err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	codeText, err := newTextIndex()
	if err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	s.memText, s.codeText = memText, codeText
	return nil
}

// --- memory CRUD ---

func (s *Store) SaveMemory(ctx context.Context, m *types.Memory) error {
	if err := s.sql.SaveMemory(ctx, m); err != nil {
		return err
	}
	if m.EmbeddingState == types.EmbeddingReady && len(m.Embedding) == s.memVectors.Dimensions() {
		if err := s.memVectors.Add(ctx, m.ID, m.Embedding); err != nil {
			return err
		}
	}
	var until int64
	if m.ValidUntil != nil {
		until = m.ValidUntil.UnixNano()
	}
	if err := s.memText.Put(m.ID, m.Content, until); err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	return s.sql.GetMemory(ctx, id)
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	if err := s.sql.DeleteMemory(ctx, id); err != nil {
		return err
	}
	s.memVectors.Delete(id)
	if err := s.memText.Delete(id); err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	return nil
}

func (s *Store) ListMemories(ctx context.Context, userID string, limit, offset int) ([]*types.Memory, error) {
	return s.sql.ListMemories(ctx, userID, limit, offset)
}

func (s *Store) GetValid(ctx context.Context, userID string, limit int) ([]*types.Memory, error) {
	return s.sql.GetValid(ctx, userID, limit)
}

func (s *Store) GetValidAt(ctx context.Context, asOf time.Time, userID string, limit int) ([]*types.Memory, error) {
	return s.sql.GetValidAt(ctx, asOf, userID, limit)
}

// Invalidate marks memory id invalid as of now (spec.md §4.9), then updates
// both in-memory indexes to match: the HNSW vector is evicted so
// vector_search stops surfacing it, and the bleve doc is re-Put with its
// new valid_until_nanos so bm25_search's own range filter picks it up too
// (spec.md §4.9/§8: neither search path may return an invalidated memory).
func (s *Store) Invalidate(ctx context.Context, id, reason string) error {
	if err := s.sql.Invalidate(ctx, id, reason); err != nil {
		return err
	}
	s.memVectors.Delete(id)
	m, err := s.sql.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if err := s.memText.Put(m.ID, m.Content, m.ValidUntil.UnixNano()); err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	return nil
}

func (s *Store) BatchUpdateMemoryEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	if err := s.sql.BatchUpdateMemoryEmbeddings(ctx, ids, vectors); err != nil {
		return err
	}
	for i, id := range ids {
		if len(vectors[i]) == s.memVectors.Dimensions() {
			if err := s.memVectors.Add(ctx, id, vectors[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- entities / relations / graph ---

func (s *Store) SaveEntity(ctx context.Context, e *types.Entity) error {
	return s.sql.SaveEntity(ctx, e)
}

func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	return s.sql.GetEntity(ctx, id)
}

func (s *Store) SaveRelation(ctx context.Context, r *types.Relation) error {
	return s.sql.SaveRelation(ctx, r)
}

// GetRelated performs bounded graph traversal from entityID (spec.md §4.9
// get_related), delegating level-by-level neighbor lookups to the
// relations table via internal/graphcore.BoundedBFS.
func (s *Store) GetRelated(ctx context.Context, entityID string, depth int, direction types.RelationDirection) (graphcore.BFSResult, error) {
	dir := toGraphDirection(direction)
	fetch := func(ctx context.Context, ids []string, d graphcore.Direction) (map[string][]string, error) {
		return s.sql.neighborsOf(ctx, ids, toRelationDirection(d))
	}
	return graphcore.BoundedBFS(ctx, entityID, depth, dir, fetch)
}

// GetSubgraph returns the induced subgraph over ids: the entities
// themselves plus every relation where both endpoints are in ids (spec.md
// §4.9 get_subgraph).
func (s *Store) GetSubgraph(ctx context.Context, ids []string) (*graphcore.Graph, error) {
	edges, err := s.sql.subgraphEdges(ctx, ids)
	if err != nil {
		return nil, err
	}
	g := graphcore.New()
	for _, id := range ids {
		g.AddNode(id)
	}
	for _, r := range edges {
		g.AddEdge(r.FromEntity, r.ToEntity, r.Weight)
	}
	return g, nil
}

// Subgraph implements retrieval.GraphStore: it resolves the memories in ids
// to the entity_id each carries, adds every entity one live relation away
// from those in either direction, and returns the induced subgraph over
// that set (spec.md §4.13 step 3, and SPEC_FULL.md's Open Question
// resolution: memories join the graph only through an explicit entity_id).
func (s *Store) Subgraph(ctx context.Context, ids []string) (*graphcore.Graph, error) {
	entityIDs, err := s.sql.entityIDsForMemories(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(entityIDs) == 0 {
		return graphcore.New(), nil
	}
	neighbors, err := s.sql.neighborsOf(ctx, entityIDs, relationBoth)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		seen[id] = true
	}
	expanded := append([]string(nil), entityIDs...)
	for _, id := range entityIDs {
		for _, n := range neighbors[id] {
			if !seen[n] {
				seen[n] = true
				expanded = append(expanded, n)
			}
		}
	}
	return s.GetSubgraph(ctx, expanded)
}

func toGraphDirection(d types.RelationDirection) graphcore.Direction {
	switch d {
	case types.DirectionIncoming:
		return graphcore.Incoming
	case types.DirectionBoth:
		return graphcore.Both
	default:
		return graphcore.Outgoing
	}
}

func toRelationDirection(d graphcore.Direction) relationDirection {
	switch d {
	case graphcore.Incoming:
		return relationIncoming
	case graphcore.Both:
		return relationBoth
	default:
		return relationOutgoing
	}
}

// --- code index ---

func (s *Store) SaveCodeChunk(ctx context.Context, c *types.CodeChunk) error {
	if err := s.sql.SaveCodeChunk(ctx, c); err != nil {
		return err
	}
	if len(c.Embedding) == s.codeVectors.Dimensions() {
		if err := s.codeVectors.Add(ctx, c.ID, c.Embedding); err != nil {
			return err
		}
	}
	if err := s.codeText.Put(c.ID, c.Content, 0); err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	return nil
}

func (s *Store) DeleteCodeChunksForFile(ctx context.Context, projectID, filePath string) error {
	chunks, err := s.sql.ChunksByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.sql.DeleteCodeChunksForFile(ctx, projectID, filePath); err != nil {
		return err
	}
	for _, c := range chunks {
		if c.FilePath != filePath {
			continue
		}
		s.codeVectors.Delete(c.ID)
		if err := s.codeText.Delete(c.ID); err != nil {
			return errs.Wrap(errs.Internal, err)
		}
	}
	return nil
}

func (s *Store) BatchUpdateChunkEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	if err := s.sql.BatchUpdateChunkEmbeddings(ctx, ids, vectors); err != nil {
		return err
	}
	for i, id := range ids {
		if len(vectors[i]) == s.codeVectors.Dimensions() {
			if err := s.codeVectors.Add(ctx, id, vectors[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) SaveCodeSymbol(ctx context.Context, sym *types.CodeSymbol) error {
	return s.sql.SaveCodeSymbol(ctx, sym)
}

// BatchUpdateSymbolEmbeddings applies many symbol embeddings atomically per
// record. Symbols are not queried by vector/BM25 search (only chunks are, per
// spec.md §4.9), so this has no in-memory index side effect.
func (s *Store) BatchUpdateSymbolEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	return s.sql.BatchUpdateSymbolEmbeddings(ctx, ids, vectors)
}

func (s *Store) DeleteSymbolsForFile(ctx context.Context, projectID, filePath string) error {
	return s.sql.DeleteSymbolsForFile(ctx, projectID, filePath)
}

func (s *Store) FindSymbolByNameWithContext(ctx context.Context, projectID, name, preferFile string) (*types.CodeSymbol, error) {
	return s.sql.FindSymbolByNameWithContext(ctx, projectID, name, preferFile)
}

func (s *Store) SaveSymbolRelation(ctx context.Context, r *types.SymbolRelation) error {
	return s.sql.SaveSymbolRelation(ctx, r)
}

func (s *Store) SetFileHash(ctx context.Context, projectID, filePath, hash string) error {
	return s.sql.SetFileHash(ctx, projectID, filePath, hash)
}

func (s *Store) FileHash(ctx context.Context, projectID, filePath string) (string, bool, error) {
	return s.sql.FileHash(ctx, projectID, filePath)
}

func (s *Store) DeleteFileHash(ctx context.Context, projectID, filePath string) error {
	return s.sql.DeleteFileHash(ctx, projectID, filePath)
}

func (s *Store) SaveIndexStatus(ctx context.Context, st *types.IndexStatus) error {
	return s.sql.SaveIndexStatus(ctx, st)
}

func (s *Store) GetIndexStatus(ctx context.Context, projectID string) (*types.IndexStatus, error) {
	return s.sql.GetIndexStatus(ctx, projectID)
}

func (s *Store) ListProjects(ctx context.Context) ([]*types.IndexStatus, error) {
	return s.sql.ListProjects(ctx)
}

func (s *Store) CompletionCounts(ctx context.Context, projectID string) (embeddedChunks, embeddedSymbols int, err error) {
	return s.sql.CompletionCounts(ctx, projectID)
}

func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	chunks, err := s.sql.ChunksByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.sql.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	for _, c := range chunks {
		s.codeVectors.Delete(c.ID)
		if err := s.codeText.Delete(c.ID); err != nil {
			return errs.Wrap(errs.Internal, err)
		}
	}
	return nil
}

// --- search (vector / bm25), memories and code ---

// VectorSearchMemories implements retrieval.VectorStore.
func (s *Store) VectorSearchMemories(ctx context.Context, embedding []float32, k int) ([]retrieval.MemoryHit, error) {
	hits, err := s.memVectors.Search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}
	return s.hydrateMemoryHits(ctx, hits)
}

// BM25SearchMemories implements retrieval.LexicalStore.
func (s *Store) BM25SearchMemories(ctx context.Context, query string, k int) ([]retrieval.MemoryHit, error) {
	now := time.Now()
	hits, err := s.memText.Search(ctx, query, k, now.UnixNano())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err)
	}
	out := make([]retrieval.MemoryHit, 0, len(hits))
	for _, h := range hits {
		m, err := s.sql.GetMemory(ctx, h.ID)
		if err != nil {
			continue // deleted between index and lookup
		}
		if !m.IsValidAt(now) {
			continue // invalidated since the bleve doc was last written
		}
		out = append(out, retrieval.MemoryHit{ID: m.ID, Content: m.Content, Kind: m.Kind, Score: h.Score})
	}
	return out, nil
}

// hydrateMemoryHits resolves vectorHit IDs to full memories, dropping
// anything invalidated since it was indexed (spec.md §4.9: vector_search
// must exclude invalidated memories just like bm25_search).
func (s *Store) hydrateMemoryHits(ctx context.Context, hits []vectorHit) ([]retrieval.MemoryHit, error) {
	now := time.Now()
	out := make([]retrieval.MemoryHit, 0, len(hits))
	for _, h := range hits {
		m, err := s.sql.GetMemory(ctx, h.ID)
		if err != nil {
			continue
		}
		if !m.IsValidAt(now) {
			continue
		}
		out = append(out, retrieval.MemoryHit{ID: m.ID, Content: m.Content, Kind: m.Kind, Score: float64(h.Score)})
	}
	return out, nil
}

// VectorSearchCode implements retrieval.CodeVectorStore, scoping cosine
// search over code chunks to projectID when non-empty.
func (s *Store) VectorSearchCode(ctx context.Context, embedding []float32, projectID string, k int) ([]retrieval.CodeHit, error) {
	hits, err := s.codeVectors.Search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}
	return s.hydrateCodeHits(ctx, hits, projectID)
}

// BM25SearchCode implements retrieval.CodeLexicalStore, scoping lexical
// search over code chunks to projectID when non-empty. The code index
// carries no bitemporal data, so the validity filter is skipped (asOfNanos=0).
func (s *Store) BM25SearchCode(ctx context.Context, query, projectID string, k int) ([]retrieval.CodeHit, error) {
	hits, err := s.codeText.Search(ctx, query, k, 0)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err)
	}
	out := make([]retrieval.CodeHit, 0, len(hits))
	for _, h := range hits {
		c, ok, err := s.sql.getChunk(ctx, h.ID)
		if err != nil || !ok {
			continue
		}
		if projectID != "" && c.ProjectID != projectID {
			continue
		}
		out = append(out, codeHitFromChunk(c, h.Score))
	}
	return out, nil
}

func (s *Store) hydrateCodeHits(ctx context.Context, hits []vectorHit, projectID string) ([]retrieval.CodeHit, error) {
	out := make([]retrieval.CodeHit, 0, len(hits))
	for _, h := range hits {
		c, ok, err := s.sql.getChunk(ctx, h.ID)
		if err != nil || !ok {
			continue
		}
		if projectID != "" && c.ProjectID != projectID {
			continue
		}
		out = append(out, codeHitFromChunk(c, float64(h.Score)))
	}
	return out, nil
}

func codeHitFromChunk(c types.CodeChunk, score float64) retrieval.CodeHit {
	return retrieval.CodeHit{
		ID:        c.ID,
		FilePath:  c.FilePath,
		Content:   c.Content,
		Language:  c.Language,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Score:     score,
	}
}
