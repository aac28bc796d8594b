package datastore

// schema is applied with CREATE TABLE IF NOT EXISTS on every open, the same
// idempotent-migration idiom the teacher uses for its telemetry tables
// (internal/telemetry/store.go's InitTelemetrySchema). Times are stored as
// Unix nanoseconds (INTEGER) rather than RFC3339 text so bitemporal
// comparisons are numeric, not lexicographic.
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id                  TEXT PRIMARY KEY,
	content             TEXT NOT NULL,
	embedding           BLOB,
	kind                TEXT NOT NULL,
	user_id             TEXT NOT NULL DEFAULT '',
	metadata            TEXT,
	event_time_ns       INTEGER NOT NULL,
	ingestion_time_ns   INTEGER NOT NULL,
	valid_from_ns       INTEGER NOT NULL,
	valid_until_ns       INTEGER,
	importance          REAL NOT NULL DEFAULT 0,
	invalidation_reason TEXT NOT NULL DEFAULT '',
	content_hash        TEXT NOT NULL DEFAULT '',
	embedding_state     TEXT NOT NULL DEFAULT 'none',
	entity_id           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_memories_user_valid ON memories(user_id, valid_until_ns);
CREATE INDEX IF NOT EXISTS idx_memories_entity ON memories(entity_id);

CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	embedding   BLOB,
	user_id     TEXT NOT NULL DEFAULT '',
	created_at_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS relations (
	id             TEXT PRIMARY KEY,
	from_entity    TEXT NOT NULL,
	to_entity      TEXT NOT NULL,
	relation_type  TEXT NOT NULL,
	weight         REAL NOT NULL DEFAULT 1,
	valid_from_ns  INTEGER NOT NULL,
	valid_until_ns INTEGER
);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_entity);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_entity);

CREATE TABLE IF NOT EXISTS code_chunks (
	id           TEXT PRIMARY KEY,
	file_path    TEXT NOT NULL,
	content      TEXT NOT NULL,
	language     TEXT NOT NULL,
	start_line   INTEGER NOT NULL,
	end_line     INTEGER NOT NULL,
	chunk_type   TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	embedding    BLOB,
	content_hash TEXT NOT NULL,
	project_id   TEXT NOT NULL,
	indexed_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON code_chunks(project_id);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON code_chunks(project_id, file_path);

CREATE TABLE IF NOT EXISTS code_symbols (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	symbol_type TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	project_id  TEXT NOT NULL,
	signature   TEXT NOT NULL DEFAULT '',
	embedding   BLOB
);
CREATE INDEX IF NOT EXISTS idx_symbols_project ON code_symbols(project_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON code_symbols(project_id, name);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON code_symbols(project_id, file_path);

CREATE TABLE IF NOT EXISTS symbol_relations (
	id            TEXT PRIMARY KEY,
	from_symbol   TEXT NOT NULL,
	to_symbol     TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	line_number   INTEGER NOT NULL,
	project_id    TEXT NOT NULL,
	created_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symrel_project ON symbol_relations(project_id);

CREATE TABLE IF NOT EXISTS file_hashes (
	project_id   TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	PRIMARY KEY (project_id, file_path)
);

CREATE TABLE IF NOT EXISTS index_statuses (
	project_id      TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	total_files     INTEGER NOT NULL DEFAULT 0,
	indexed_files   INTEGER NOT NULL DEFAULT 0,
	total_chunks    INTEGER NOT NULL DEFAULT 0,
	total_symbols   INTEGER NOT NULL DEFAULT 0,
	started_at_ns   INTEGER NOT NULL,
	completed_at_ns INTEGER,
	error_message   TEXT NOT NULL DEFAULT ''
);

-- QW-5-style dimension handshake state (spec.md §4.9): records the
-- embedding dimension and model the vector indexes were last built with,
-- so a later open can detect an embedder change and rebuild.
CREATE TABLE IF NOT EXISTS index_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	stateKeyVectorDimension = "vector_dimension"
	stateKeyVectorModel     = "vector_model"
)
