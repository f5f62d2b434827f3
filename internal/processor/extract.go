package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-jobqueue/internal/domain/job"
)

// ExtractResult is the result of an extract job.
type ExtractResult struct {
	Expression string `json:"expression"`
	Value      any    `json:"value"`
}

// Extract evaluates a JMESPath expression against the payload document.
func Extract(_ context.Context, p job.ExtractPayload, _ string) (ExtractResult, error) {
	compiled, err := jmespath.Compile(p.Expression)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: compile expression: %w", ErrInvalidPayload, err)
	}

	var doc any
	if err := json.Unmarshal(p.Document, &doc); err != nil {
		return ExtractResult{}, fmt.Errorf("%w: document: %w", ErrInvalidPayload, err)
	}

	value, err := compiled.Search(doc)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("evaluate expression: %w", err)
	}
	return ExtractResult{Expression: p.Expression, Value: value}, nil
}
