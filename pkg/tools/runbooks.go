package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-openapi/strfmt"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// Runbook is one search hit
type Runbook struct {
	ID       strfmt.UUID `json:"id,omitempty"`
	Title    string      `json:"title"`
	Content  string      `json:"content"`
	Service  string      `json:"service,omitempty"`
	Distance float64     `json:"distance,omitempty"`
}

// RunbookSearcher finds runbooks relevant to a free-text query
type RunbookSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Runbook, error)
}

// RunbookTool exposes a RunbookSearcher to the model
type RunbookTool struct {
	searcher RunbookSearcher
	limit    int
}

// NewRunbookTool returns up to limit hits per call
func NewRunbookTool(searcher RunbookSearcher, limit int) *RunbookTool {
	if limit <= 0 {
		limit = 3
	}
	return &RunbookTool{searcher: searcher, limit: limit}
}

// Name implements interfaces.Tool
func (r *RunbookTool) Name() string {
	return "search_runbooks"
}

// Description implements interfaces.Tool
func (r *RunbookTool) Description() string {
	return "Search the team's operational runbooks for procedures matching a symptom or service."
}

// Parameters implements interfaces.Tool
func (r *RunbookTool) Parameters() map[string]interfaces.ParameterSpec {
	return map[string]interfaces.ParameterSpec{
		"query": {
			Type:        "string",
			Description: "Symptom, alert name or service to look up",
			Required:    true,
		},
	}
}

type runbookArgs struct {
	Query string `json:"query"`
}

// Execute implements interfaces.Tool. No hits is a normal, empty answer; an
// unreachable index is reported as a failed result.
func (r *RunbookTool) Execute(ctx context.Context, args string) (interfaces.ToolResult, error) {
	var in runbookArgs
	if err := sonic.UnmarshalString(args, &in); err != nil {
		return interfaces.ToolResult{}, fmt.Errorf("invalid search_runbooks arguments: %w", err)
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return interfaces.ToolResult{}, errors.New("invalid search_runbooks arguments: query is empty")
	}

	hits, err := r.searcher.Search(ctx, query, r.limit)
	if err != nil {
		return interfaces.ToolResult{
			Failed:  true,
			Message: fmt.Sprintf("runbook search failed: %v", err),
		}, nil
	}
	if len(hits) == 0 {
		return interfaces.ToolResult{Output: "No matching runbooks."}, nil
	}

	out, err := sonic.ConfigStd.MarshalToString(hits)
	if err != nil {
		return interfaces.ToolResult{}, fmt.Errorf("failed to encode runbooks: %w", err)
	}
	return interfaces.ToolResult{Output: out}, nil
}
