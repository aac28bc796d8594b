// Package indexer implements full and incremental project indexing and the
// completion monitor (spec.md §4.8, §4.11): scanning a project root,
// chunking and parsing each file, persisting chunks/symbols through the
// datastore, enqueueing their embeddings, resolving symbol references into
// symbol_relations, and promoting a project's IndexStatus from
// embedding_pending to completed once every embedding has landed.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/codechunk"
	"github.com/amanmcp-labs/memoryd/internal/codeparse"
	"github.com/amanmcp-labs/memoryd/internal/datastore"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
	"github.com/amanmcp-labs/memoryd/internal/scan"
	"github.com/amanmcp-labs/memoryd/internal/symbolindex"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// chunkFlushSize is the batch size chunks are flushed to the store in
// (spec.md §4.8: "flush in batches of 100").
const chunkFlushSize = 100

// projectSymbols tracks the in-memory state the reference-resolution pass
// needs for one project: the name->candidates multimap (spec.md §4.7) plus
// a side table resolving (file, name) to the symbol ID saved for it, since
// symbolindex.Ref carries a name and file but not the ID a symbol_relations
// row must reference.
type projectSymbols struct {
	index *symbolindex.Index
	ids   map[string]string // "filePath\x00name" -> symbol ID
}

// Indexer orchestrates full and incremental indexing over one datastore.
type Indexer struct {
	store   *datastore.Store
	scanner *scan.Scanner
	parser  *codeparse.Parser
	queue   *equeue.Queue
	log     *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectSymbols
}

// New constructs an Indexer. queue is the embedding request queue chunks and
// symbols are enqueued onto (spec.md §4.8 step 3); a Worker (internal/equeue)
// must be draining it for embeddings to actually complete.
func New(store *datastore.Store, scanner *scan.Scanner, parser *codeparse.Parser, queue *equeue.Queue, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		store:    store,
		scanner:  scanner,
		parser:   parser,
		queue:    queue,
		log:      log,
		projects: make(map[string]*projectSymbols),
	}
}

func (ix *Indexer) projectState(projectID string) *projectSymbols {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ps, ok := ix.projects[projectID]
	if !ok {
		ps = &projectSymbols{index: symbolindex.New(), ids: make(map[string]string)}
		ix.projects[projectID] = ps
	}
	return ps
}

// FullIndex performs a complete (re-)index of root under projectID (spec.md
// §4.8 "Full index"): it deletes any prior chunks/symbols/file-hashes for
// the project, scans root, and processes every discovered file.
func (ix *Indexer) FullIndex(ctx context.Context, projectID, root string) error {
	if err := ix.store.DeleteProject(ctx, projectID); err != nil {
		return errs.Wrap(errs.Indexing, err)
	}
	ix.mu.Lock()
	ix.projects[projectID] = &projectSymbols{index: symbolindex.New(), ids: make(map[string]string)}
	ix.mu.Unlock()

	results, err := ix.scanner.Scan(ctx, root)
	if err != nil {
		return errs.Wrap(errs.Indexing, err)
	}
	var files []scan.Result
	for r := range results {
		files = append(files, r)
	}

	now := time.Now()
	if err := ix.store.SaveIndexStatus(ctx, &types.IndexStatus{
		ProjectID: projectID, State: types.IndexStateIndexing, TotalFiles: len(files), StartedAt: now,
	}); err != nil {
		return errs.Wrap(errs.Indexing, err)
	}

	var indexedFiles, totalChunks, totalSymbols int
	var allRefs []fileRefs

	for _, f := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nChunks, nSymbols, refs, err := ix.indexFile(ctx, projectID, root, f.RelPath, f.Language)
		if err != nil {
			ix.log.Warn("skipping file", "path", f.RelPath, "error", err)
			continue
		}
		indexedFiles++
		totalChunks += nChunks
		totalSymbols += nSymbols
		if len(refs.refs) > 0 {
			allRefs = append(allRefs, refs)
		}
	}

	ix.resolveReferences(ctx, projectID, allRefs)

	return ix.store.SaveIndexStatus(ctx, &types.IndexStatus{
		ProjectID: projectID, State: types.IndexStateEmbeddingPending,
		TotalFiles: len(files), IndexedFiles: indexedFiles,
		TotalChunks: totalChunks, TotalSymbols: totalSymbols, StartedAt: now,
	})
}

// Incremental re-indexes exactly the given project-relative paths (spec.md
// §4.8 "Incremental index"), triggered by the watcher's debounced callback.
// Each path's current on-disk state is re-read regardless of which fsnotify
// operation produced it, per spec.md §4.8's back-pressure note that "the
// final post-debounce call always re-reads each file's current state".
func (ix *Indexer) Incremental(ctx context.Context, projectID, root string, relPaths []string) error {
	status, err := ix.store.GetIndexStatus(ctx, projectID)
	if err != nil {
		return errs.Wrap(errs.Indexing, err)
	}

	var addedChunks, addedSymbols int
	var allRefs []fileRefs

	for _, rel := range relPaths {
		absPath := root + string(os.PathSeparator) + rel
		if _, statErr := os.Stat(absPath); statErr != nil {
			if err := ix.deleteFile(ctx, projectID, rel); err != nil {
				ix.log.Warn("failed to delete stale file records", "path", rel, "error", err)
			}
			continue
		}

		if !scan.IsCodeFile(absPath) {
			continue
		}
		content, readErr := scan.ReadFile(absPath)
		if readErr != nil {
			ix.log.Warn("skipping unreadable file", "path", rel, "error", readErr)
			continue
		}

		newHash := hashutil.ContentHash(content)
		oldHash, ok, hashErr := ix.store.FileHash(ctx, projectID, rel)
		if hashErr == nil && ok && oldHash == newHash {
			continue // unchanged
		}

		if err := ix.deleteFile(ctx, projectID, rel); err != nil {
			ix.log.Warn("failed to clear stale records before reindex", "path", rel, "error", err)
		}

		lang := scan.DetectLanguage(absPath)
		nChunks, nSymbols, refs, indexErr := ix.indexContent(ctx, projectID, rel, lang, content)
		if indexErr != nil {
			ix.log.Warn("failed to reindex file", "path", rel, "error", indexErr)
			continue
		}
		addedChunks += nChunks
		addedSymbols += nSymbols
		if len(refs.refs) > 0 {
			allRefs = append(allRefs, refs)
		}
	}

	ix.resolveReferences(ctx, projectID, allRefs)

	status.TotalChunks += addedChunks
	status.TotalSymbols += addedSymbols
	status.State = types.IndexStateEmbeddingPending
	return ix.store.SaveIndexStatus(ctx, status)
}

func (ix *Indexer) deleteFile(ctx context.Context, projectID, relPath string) error {
	if err := ix.store.DeleteCodeChunksForFile(ctx, projectID, relPath); err != nil {
		return err
	}
	if err := ix.store.DeleteSymbolsForFile(ctx, projectID, relPath); err != nil {
		return err
	}
	if err := ix.store.DeleteFileHash(ctx, projectID, relPath); err != nil {
		return err
	}
	ix.projectState(projectID).index.RemoveFile(relPath)
	return nil
}

func (ix *Indexer) indexFile(ctx context.Context, projectID, root, relPath, language string) (int, int, fileRefs, error) {
	absPath := root + string(os.PathSeparator) + relPath
	content, err := scan.ReadFile(absPath)
	if err != nil {
		return 0, 0, fileRefs{}, err
	}
	return ix.indexContent(ctx, projectID, relPath, language, content)
}

// fileRefs carries one file's extracted references until all files are
// processed; FromSymbol is resolved to an ID through projectSymbols.ids.
type fileRefs struct {
	filePath string
	refs     []types.CodeReference
}

// indexContent chunks, embeds, and parses one file's content, persisting
// chunks and symbols and enqueueing their embedding requests. Returns the
// counts added and any references found (relations are resolved later, once
// every file in the batch has contributed its symbols to the project index).
func (ix *Indexer) indexContent(ctx context.Context, projectID, relPath, language, content string) (int, int, fileRefs, error) {
	ps := ix.projectState(projectID)

	chunks := codechunk.Chunk(codechunk.Input{ProjectID: projectID, FilePath: relPath, Content: content, Language: language})
	var buffer []types.CodeChunk
	for i := range chunks {
		chunks[i].ID = hashutil.SymbolID16(projectID, relPath, strconv.Itoa(chunks[i].StartLine), strconv.Itoa(chunks[i].EndLine))
		buffer = append(buffer, chunks[i])
		if len(buffer) >= chunkFlushSize {
			ix.flushChunks(ctx, buffer)
			buffer = buffer[:0]
		}
	}
	ix.flushChunks(ctx, buffer)

	var refs []types.CodeReference
	var symbolCount int
	if cfg, ok := ix.parser.Registry().GetByName(language); ok {
		tree, err := ix.parser.Parse(ctx, []byte(content), language)
		if err == nil {
			symbols := codeparse.ExtractSymbols(tree, cfg, projectID, relPath)
			for i := range symbols {
				symbols[i].ID = hashutil.SymbolID16(projectID, relPath, symbols[i].Name, strconv.Itoa(symbols[i].StartLine))
				if err := ix.store.SaveCodeSymbol(ctx, &symbols[i]); err != nil {
					ix.log.Warn("failed to save symbol", "name", symbols[i].Name, "error", err)
					continue
				}
				ix.enqueueEmbed(symbols[i].Signature, equeue.Target{Table: "symbols", ID: symbols[i].ID})
				ps.index.Add(symbolindex.Ref{Name: symbols[i].Name, FilePath: relPath, Line: symbols[i].StartLine})
				ps.ids[refKey(relPath, symbols[i].Name)] = symbols[i].ID
				symbolCount++
			}
			refs = codeparse.ExtractReferences(tree, cfg, symbols, relPath)
		}
	}

	if err := ix.store.SetFileHash(ctx, projectID, relPath, hashutil.ContentHash(content)); err != nil {
		return len(chunks), symbolCount, fileRefs{}, err
	}

	return len(chunks), symbolCount, fileRefs{filePath: relPath, refs: refs}, nil
}

func (ix *Indexer) flushChunks(ctx context.Context, chunks []types.CodeChunk) {
	for i := range chunks {
		if err := ix.store.SaveCodeChunk(ctx, &chunks[i]); err != nil {
			ix.log.Warn("failed to save chunk", "file", chunks[i].FilePath, "error", err)
			continue
		}
		ix.enqueueEmbed(chunks[i].Content, equeue.Target{Table: "chunks", ID: chunks[i].ID})
	}
}

// enqueueEmbed always enqueues asynchronously: embedpolicy.Decide always
// returns ModeAsync for chunks and symbols regardless of content length
// (spec.md §4.4), so callers never need to branch on the policy here.
func (ix *Indexer) enqueueEmbed(text string, target equeue.Target) {
	t := target
	if err := ix.queue.Send(context.Background(), equeue.Request{Text: text, Target: &t}); err != nil {
		ix.log.Warn("failed to enqueue embedding", "table", target.Table, "id", target.ID, "error", err)
	}
}

// resolveReferences creates symbol_relations from every file's references
// (spec.md §4.8 step 4): same-project resolution via the symbol index
// (§4.7) first, falling back to the store's cross-file lookup.
func (ix *Indexer) resolveReferences(ctx context.Context, projectID string, files []fileRefs) {
	ps := ix.projectState(projectID)
	now := time.Now()

	for _, fr := range files {
		for _, ref := range fr.refs {
			if ref.FromSymbol == "global" {
				continue // no symbol ID to anchor the relation to
			}
			fromID, ok := ps.ids[refKey(ref.FilePath, ref.FromSymbol)]
			if !ok {
				continue
			}

			toID, ok := ix.resolveSymbolID(ctx, ps, projectID, ref.ToSymbol, ref.FilePath)
			if !ok {
				continue
			}

			rel := &types.SymbolRelation{
				ID:           hashutil.SymbolID16(fromID, toID, string(ref.RelationType), ref.FilePath, strconv.Itoa(ref.Line)),
				FromSymbol:   fromID,
				ToSymbol:     toID,
				RelationType: ref.RelationType,
				FilePath:     ref.FilePath,
				LineNumber:   ref.Line,
				ProjectID:    projectID,
				CreatedAt:    now,
			}
			if err := ix.store.SaveSymbolRelation(ctx, rel); err != nil {
				ix.log.Warn("failed to save symbol relation", "from", fromID, "to", toID, "error", err)
			}
		}
	}
}

// resolveSymbolID resolves name to a symbol ID, preferring the in-memory
// symbol index built during this run, then falling back to the persisted
// cross-file lookup (spec.md §4.9 find_symbol_by_name_with_context).
func (ix *Indexer) resolveSymbolID(ctx context.Context, ps *projectSymbols, projectID, name, callerFile string) (string, bool) {
	if ref, ok := ps.index.Resolve(name, callerFile); ok {
		if id, ok := ps.ids[refKey(ref.FilePath, ref.Name)]; ok {
			return id, true
		}
	}
	sym, err := ix.store.FindSymbolByNameWithContext(ctx, projectID, name, callerFile)
	if err != nil || sym == nil {
		return "", false
	}
	return sym.ID, true
}

func refKey(filePath, name string) string {
	return filePath + "\x00" + name
}
