package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Echo returns the payload unchanged. It is registered as a raw handler so field order
// and unknown fields survive.
func Echo(_ context.Context, _ string, payload json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidPayload)
	}
	return bytes.Clone(payload), nil
}
