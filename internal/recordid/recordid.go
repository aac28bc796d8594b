// Package recordid validates the (table, key) identifiers used to address
// every row in the bitemporal memory store. Record IDs are frequently
// composed from untrusted strings (tool call arguments, indexed file paths),
// so validation happens once at the boundary and every downstream consumer
// can treat a recordid.ID as already safe to interpolate into a query.
package recordid

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/amanmcp-labs/memoryd/internal/errs"
)

var (
	tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	keyPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ID is a validated (table, key) pair.
type ID struct {
	Table string
	Key   string
}

// New validates table and key and returns the resulting ID. table must match
// [A-Za-z_][A-Za-z0-9_]* and key must match [A-Za-z0-9_-]+; anything else is
// rejected with errs.InvalidInput rather than silently truncated or escaped.
func New(table, key string) (ID, error) {
	if !tablePattern.MatchString(table) {
		return ID{}, errs.New(errs.InvalidInput, "invalid table name", nil).
			WithDetail("table", table)
	}
	if !keyPattern.MatchString(key) {
		return ID{}, errs.New(errs.InvalidInput, "invalid record key", nil).
			WithDetail("key", key)
	}
	return ID{Table: table, Key: key}, nil
}

// Generate mints a fresh ID for table with a random UUIDv4 key. Used for
// records created from external input (memories, entities, relations)
// where no natural deterministic key exists — unlike indexer-derived
// records (chunks, symbols, symbol relations), which derive their keys
// from content via hashutil.SymbolID16 instead so repeated indexing passes
// stay idempotent.
func Generate(table string) (ID, error) {
	return New(table, uuid.NewString())
}

// String renders the ID in "table:key" form for logging and composite keys.
func (id ID) String() string {
	return id.Table + ":" + id.Key
}

// Valid reports whether id was constructed through New (or is the zero
// value's negation) — useful when an ID arrives via a struct field rather
// than New's return, e.g. after JSON unmarshaling.
func (id ID) Valid() bool {
	return tablePattern.MatchString(id.Table) && keyPattern.MatchString(id.Key)
}
