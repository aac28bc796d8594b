package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/datastore"
	"github.com/amanmcp-labs/memoryd/internal/embedpolicy"
	"github.com/amanmcp-labs/memoryd/internal/embedsvc"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/graphcore"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
	"github.com/amanmcp-labs/memoryd/internal/indexer"
	"github.com/amanmcp-labs/memoryd/internal/lifecycle"
	"github.com/amanmcp-labs/memoryd/internal/recordid"
	"github.com/amanmcp-labs/memoryd/internal/retrieval"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// Handler implements every tool spec.md §6 names against a concrete
// store/retrieval/indexer stack. One Handler is shared across the whole
// stdio session; its methods must be safe for the sequential dispatch loop
// Server.Run drives them from (no internal locking of its own is needed
// since requests are processed one at a time).
type Handler struct {
	store        *datastore.Store
	recaller     *retrieval.Recaller
	codeSearcher *retrieval.CodeSearcher
	embedder     *embedsvc.Service
	queue        *equeue.Queue
	indexer      *indexer.Indexer
	registry     *lifecycle.Registry
	log          *slog.Logger
	startedAt    time.Time
	modelName    string
}

// NewHandler wires a Handler from its components. registry may be nil if
// the caller doesn't want health aggregation in get_status.
func NewHandler(store *datastore.Store, recaller *retrieval.Recaller, codeSearcher *retrieval.CodeSearcher, embedder *embedsvc.Service, queue *equeue.Queue, ix *indexer.Indexer, registry *lifecycle.Registry, modelName string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		store:        store,
		recaller:     recaller,
		codeSearcher: codeSearcher,
		embedder:     embedder,
		queue:        queue,
		indexer:      ix,
		registry:     registry,
		log:          log,
		startedAt:    time.Now(),
		modelName:    modelName,
	}
}

// Dispatch routes req to the handler for req.Method and returns the result
// payload or a classified error. Unlike the transport-level Response, this
// never itself distinguishes JSON-RPC plumbing errors (bad params JSON) —
// those are caught by Server before Dispatch is called.
func (h *Handler) Dispatch(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case MethodStoreMemory:
		return h.storeMemory(ctx, params)
	case MethodGetMemory:
		return h.getMemory(ctx, params)
	case MethodUpdateMemory:
		return h.updateMemory(ctx, params)
	case MethodDeleteMemory:
		return h.deleteMemory(ctx, params)
	case MethodListMemories:
		return h.listMemories(ctx, params)
	case MethodSearch:
		return h.search(ctx, params)
	case MethodSearchText:
		return h.searchText(ctx, params)
	case MethodRecall:
		return h.recall(ctx, params)
	case MethodCreateEntity:
		return h.createEntity(ctx, params)
	case MethodCreateRelation:
		return h.createRelation(ctx, params)
	case MethodGetRelated:
		return h.getRelated(ctx, params)
	case MethodDetectCommunities:
		return h.detectCommunities(ctx, params)
	case MethodIndexProject:
		return h.indexProject(ctx, params)
	case MethodSearchCode:
		return h.searchCode(ctx, params)
	case MethodGetIndexStatus:
		return h.getIndexStatus(ctx, params)
	case MethodListProjects:
		return h.listProjects(ctx)
	case MethodDeleteProject:
		return h.deleteProject(ctx, params)
	case MethodGetValid:
		return h.getValid(ctx, params)
	case MethodGetValidAt:
		return h.getValidAt(ctx, params)
	case MethodInvalidate:
		return h.invalidate(ctx, params)
	case MethodGetStatus:
		return h.getStatus(ctx), nil
	case MethodResetAllMemory:
		return h.resetAllMemory(ctx, params)
	case MethodPing:
		return map[string]bool{"pong": true}, nil
	default:
		return nil, errs.New(errs.InvalidInput, "unknown method: "+method, nil)
	}
}

func (h *Handler) storeMemory(ctx context.Context, raw map[string]any) (any, error) {
	var p StoreMemoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Content == "" {
		return nil, errs.New(errs.InvalidInput, "content is required", nil)
	}
	id, err := recordid.Generate("memory")
	if err != nil {
		return nil, err
	}
	kind := types.KindEpisodic
	if p.MemoryType != "" {
		kind = types.MemoryKind(p.MemoryType)
	}
	now := time.Now()
	m := &types.Memory{
		ID:             id.String(),
		Content:        p.Content,
		Kind:           kind,
		UserID:         p.UserID,
		Metadata:       p.Metadata,
		EventTime:      now,
		IngestionTime:  now,
		ValidFrom:      now,
		Importance:     1.0,
		ContentHash:    hashutil.ContentHash(p.Content),
		EmbeddingState: types.EmbeddingPending,
		EntityID:       p.EntityID,
	}

	if embedpolicy.Decide(embedpolicy.TargetMemory, len(p.Content)) == embedpolicy.ModeSync {
		vec, embedErr := h.embedder.Embed(ctx, p.Content)
		if embedErr == nil {
			m.Embedding = vec
			m.EmbeddingState = types.EmbeddingReady
		} else {
			h.log.Warn("sync embed failed, falling back to queue", slog.String("error", embedErr.Error()))
		}
	}

	if err := h.store.SaveMemory(ctx, m); err != nil {
		return nil, err
	}

	if m.EmbeddingState != types.EmbeddingReady {
		h.enqueueEmbed(p.Content, equeue.Target{Table: "memories", ID: m.ID})
	}

	return map[string]string{"id": m.ID}, nil
}

func (h *Handler) enqueueEmbed(text string, target equeue.Target) {
	req := equeue.Request{Text: text, Target: &target}
	if err := h.queue.TrySend(req); err != nil {
		h.log.Warn("embedding enqueue failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) getMemory(ctx context.Context, raw map[string]any) (any, error) {
	var p IDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	m, err := h.store.GetMemory(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return memoryView(m), nil
}

func (h *Handler) updateMemory(ctx context.Context, raw map[string]any) (any, error) {
	var p UpdateMemoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	m, err := h.store.GetMemory(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.MemoryType != nil {
		m.Kind = types.MemoryKind(*p.MemoryType)
	}
	if p.Metadata != nil {
		m.Metadata = p.Metadata
	}
	if p.Content != nil && *p.Content != m.Content {
		m.Content = *p.Content
		m.ContentHash = hashutil.ContentHash(*p.Content)
		m.EmbeddingState = types.EmbeddingPending
		if embedpolicy.Decide(embedpolicy.TargetMemory, len(*p.Content)) == embedpolicy.ModeSync {
			vec, embedErr := h.embedder.Embed(ctx, *p.Content)
			if embedErr == nil {
				m.Embedding = vec
				m.EmbeddingState = types.EmbeddingReady
			}
		}
		if m.EmbeddingState != types.EmbeddingReady {
			h.enqueueEmbed(*p.Content, equeue.Target{Table: "memories", ID: m.ID})
		}
	}
	if err := h.store.SaveMemory(ctx, m); err != nil {
		return nil, err
	}
	return memoryView(m), nil
}

func (h *Handler) deleteMemory(ctx context.Context, raw map[string]any) (any, error) {
	var p IDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := h.store.DeleteMemory(ctx, p.ID); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

func (h *Handler) listMemories(ctx context.Context, raw map[string]any) (any, error) {
	var p ListMemoriesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	ms, err := h.store.ListMemories(ctx, p.UserID, limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return memoryViews(ms), nil
}

func (h *Handler) search(ctx context.Context, raw map[string]any) (any, error) {
	var p SearchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	limit := limitOrDefault(p.Limit)
	hits, err := h.recaller.Search(ctx, p.Query, limit)
	if err != nil {
		return nil, err
	}
	return scoredMemoryViews(hits), nil
}

func (h *Handler) searchText(ctx context.Context, raw map[string]any) (any, error) {
	var p SearchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	limit := limitOrDefault(p.Limit)
	hits, err := h.recaller.SearchText(ctx, p.Query, limit)
	if err != nil {
		return nil, err
	}
	return scoredMemoryViews(hits), nil
}

func (h *Handler) recall(ctx context.Context, raw map[string]any) (any, error) {
	var p RecallParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, errs.New(errs.InvalidInput, "query is required", nil)
	}
	limit := limitOrDefault(p.Limit)
	weights := retrieval.DefaultWeights
	if p.VectorWeight != nil {
		weights.Vector = *p.VectorWeight
	}
	if p.BM25Weight != nil {
		weights.BM25 = *p.BM25Weight
	}
	if p.PPRWeight != nil {
		weights.PPR = *p.PPRWeight
	}
	hits, err := h.recaller.Recall(ctx, p.Query, limit, weights)
	if err != nil {
		return nil, err
	}
	return scoredMemoryViews(hits), nil
}

func (h *Handler) createEntity(ctx context.Context, raw map[string]any) (any, error) {
	var p CreateEntityParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, errs.New(errs.InvalidInput, "name is required", nil)
	}
	id, err := recordid.Generate("entity")
	if err != nil {
		return nil, err
	}
	e := &types.Entity{
		ID:          id.String(),
		Name:        p.Name,
		EntityType:  p.EntityType,
		Description: p.Description,
		UserID:      p.UserID,
		CreatedAt:   time.Now(),
	}
	text := p.Name
	if p.Description != "" {
		text = p.Name + ": " + p.Description
	}
	if embedpolicy.Decide(embedpolicy.TargetEntity, len(text)) == embedpolicy.ModeSync {
		if vec, embedErr := h.embedder.Embed(ctx, text); embedErr == nil {
			e.Embedding = vec
		}
	} else {
		h.enqueueEmbed(text, equeue.Target{Table: "entities", ID: e.ID})
	}
	if err := h.store.SaveEntity(ctx, e); err != nil {
		return nil, err
	}
	return entityView(e), nil
}

func (h *Handler) createRelation(ctx context.Context, raw map[string]any) (any, error) {
	var p CreateRelationParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.FromEntity == "" || p.ToEntity == "" || p.RelationType == "" {
		return nil, errs.New(errs.InvalidInput, "from_entity, to_entity, and relation_type are required", nil)
	}
	weight := p.Weight
	if weight == 0 {
		weight = 1.0
	}
	id, err := recordid.Generate("relation")
	if err != nil {
		return nil, err
	}
	r := &types.Relation{
		ID:           id.String(),
		FromEntity:   p.FromEntity,
		ToEntity:     p.ToEntity,
		RelationType: p.RelationType,
		Weight:       weight,
		ValidFrom:    time.Now(),
	}
	if err := h.store.SaveRelation(ctx, r); err != nil {
		return nil, err
	}
	return relationView(r), nil
}

func (h *Handler) getRelated(ctx context.Context, raw map[string]any) (any, error) {
	var p GetRelatedParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.EntityID == "" {
		return nil, errs.New(errs.InvalidInput, "entity_id is required", nil)
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 2
	}
	dir := parseDirection(p.Direction)
	result, err := h.store.GetRelated(ctx, p.EntityID, depth, dir)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entities":       result.Entities,
		"truncated":      result.Truncated,
		"depth_reached":  result.DepthReached,
		"deferred_count": result.DeferredCount,
	}, nil
}

func parseDirection(s string) types.RelationDirection {
	switch s {
	case "incoming":
		return types.DirectionIncoming
	case "both":
		return types.DirectionBoth
	default:
		return types.DirectionOutgoing
	}
}

func (h *Handler) detectCommunities(ctx context.Context, raw map[string]any) (any, error) {
	var p struct {
		EntityIDs []string `json:"entity_ids"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	g, err := h.store.GetSubgraph(ctx, p.EntityIDs)
	if err != nil {
		return nil, err
	}
	communities := graphcore.DetectCommunities(g)
	return map[string]any{"communities": communities}, nil
}

func (h *Handler) indexProject(ctx context.Context, raw map[string]any) (any, error) {
	var p IndexProjectParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, errs.New(errs.InvalidPath, "path is required", nil)
	}
	projectID := hashutil.SymbolID16("project", p.Path)

	if !p.Force {
		if existing, err := h.store.GetIndexStatus(ctx, projectID); err == nil && existing.State == types.IndexStateCompleted {
			return indexStatusView(existing), nil
		}
	}

	if err := h.indexer.FullIndex(ctx, projectID, p.Path); err != nil {
		return nil, err
	}
	status, err := h.store.GetIndexStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return indexStatusView(status), nil
}

func (h *Handler) searchCode(ctx context.Context, raw map[string]any) (any, error) {
	var p SearchCodeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, errs.New(errs.InvalidInput, "query is required", nil)
	}
	limit := limitOrDefault(p.Limit)
	hits, err := h.codeSearcher.Search(ctx, p.Query, p.ProjectID, limit)
	if err != nil {
		return nil, err
	}
	return scoredCodeViews(hits), nil
}

func (h *Handler) getIndexStatus(ctx context.Context, raw map[string]any) (any, error) {
	var p ProjectIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	status, err := h.store.GetIndexStatus(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	return indexStatusView(status), nil
}

func (h *Handler) listProjects(ctx context.Context) (any, error) {
	projects, err := h.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	return indexStatusViews(projects), nil
}

func (h *Handler) deleteProject(ctx context.Context, raw map[string]any) (any, error) {
	var p ProjectIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := h.store.DeleteProject(ctx, p.ProjectID); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

func (h *Handler) getValid(ctx context.Context, raw map[string]any) (any, error) {
	var p GetValidParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	limit := limitOrDefault(p.Limit)
	ms, err := h.store.GetValid(ctx, p.UserID, limit)
	if err != nil {
		return nil, err
	}
	return memoryViews(ms), nil
}

func (h *Handler) getValidAt(ctx context.Context, raw map[string]any) (any, error) {
	var p GetValidAtParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	asOf, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "timestamp must be RFC3339", err)
	}
	limit := limitOrDefault(p.Limit)
	ms, err := h.store.GetValidAt(ctx, asOf, p.UserID, limit)
	if err != nil {
		return nil, err
	}
	return memoryViews(ms), nil
}

func (h *Handler) invalidate(ctx context.Context, raw map[string]any) (any, error) {
	var p InvalidateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errs.New(errs.InvalidInput, "id is required", nil)
	}
	if err := h.store.Invalidate(ctx, p.ID, p.Reason); err != nil {
		return nil, err
	}
	return map[string]bool{"invalidated": true}, nil
}

// StatusView is the get_status result shape.
type StatusView struct {
	Running        bool     `json:"running"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
	EmbedderStatus string   `json:"embedder_status"`
	Model          string   `json:"model"`
	QueueDepth     int      `json:"queue_depth"`
	QueueProcessed int64    `json:"queue_processed_total"`
	QueueFailed    int64    `json:"queue_failed_total"`
	Healthy        bool     `json:"healthy"`
	FailingChecks  []string `json:"failing_checks,omitempty"`
}

func (h *Handler) getStatus(ctx context.Context) StatusView {
	view := StatusView{
		Running:       true,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Model:         h.modelName,
		Healthy:       true,
	}
	if h.embedder != nil {
		status, _, _ := h.embedder.StatusSnapshot()
		switch status {
		case embedsvc.StatusReady:
			view.EmbedderStatus = "ready"
		case embedsvc.StatusError:
			view.EmbedderStatus = "error"
		default:
			view.EmbedderStatus = "loading"
		}
	}
	if h.queue != nil {
		m := h.queue.Metrics()
		view.QueueDepth = m.QueueDepth
		view.QueueProcessed = m.ProcessedTotal
		view.QueueFailed = m.FailedTotal
	}
	if h.registry != nil {
		healthy, failing := h.registry.HealthCheck(ctx)
		view.Healthy = healthy
		view.FailingChecks = failing
	}
	return view
}

func (h *Handler) resetAllMemory(ctx context.Context, raw map[string]any) (any, error) {
	var p ResetAllMemoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if !p.Confirm {
		return nil, errs.New(errs.InvalidInput, "reset_all_memory requires confirm=true", nil)
	}
	if err := h.store.ResetDB(ctx); err != nil {
		return nil, err
	}
	return map[string]bool{"reset": true}, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
