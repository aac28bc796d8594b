package transport

import (
	"encoding/json"

	"github.com/amanmcp-labs/memoryd/internal/errs"
)

// decodeParams re-marshals raw (already json.Unmarshal'd into a generic
// map by the server's line decoder) and unmarshals it into dst, giving each
// handler a typed params struct without a second pass over the wire bytes.
func decodeParams(raw map[string]any, dst any) error {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return errs.New(errs.InvalidInput, "failed to encode params", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.New(errs.InvalidInput, "failed to decode params", err)
	}
	return nil
}
