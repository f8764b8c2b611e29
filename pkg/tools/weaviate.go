package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
)

// WeaviateConfig locates the runbook class
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string
	Class  string
}

// WeaviateSearcher searches a Weaviate class with title, content and
// service properties. With an embedder it sends nearVector queries,
// otherwise nearText, which needs a vectorizer module on the server.
type WeaviateSearcher struct {
	client   *weaviate.Client
	class    string
	embedder interfaces.Embedder
	logger   logging.Logger
}

// WeaviateOption configures a WeaviateSearcher
type WeaviateOption func(*WeaviateSearcher)

// WithEmbedder embeds queries client-side
func WithEmbedder(embedder interfaces.Embedder) WeaviateOption {
	return func(s *WeaviateSearcher) {
		s.embedder = embedder
	}
}

// WithWeaviateLogger sets the logger
func WithWeaviateLogger(logger logging.Logger) WeaviateOption {
	return func(s *WeaviateSearcher) {
		s.logger = logger
	}
}

// NewWeaviateSearcher creates a searcher. It does not contact the server.
func NewWeaviateSearcher(cfg WeaviateConfig, options ...WeaviateOption) (*WeaviateSearcher, error) {
	if cfg.Host == "" {
		return nil, errors.New("weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = "Runbook"
	}

	clientCfg := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		clientCfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}

	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	s := &WeaviateSearcher{
		client: client,
		class:  cfg.Class,
		logger: logging.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Search implements RunbookSearcher
func (s *WeaviateSearcher) Search(ctx context.Context, query string, limit int) ([]Runbook, error) {
	fields := []graphql.Field{
		{Name: "title"},
		{Name: "content"},
		{Name: "service"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	get := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithLimit(limit)

	if s.embedder != nil {
		vector, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		get = get.WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vector))
	} else {
		get = get.WithNearText(s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query}))
	}

	resp, err := get.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}

	hits, err := parseRunbooks(resp, s.class)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "Runbook search", map[string]interface{}{
		"class": s.class,
		"hits":  len(hits),
	})
	return hits, nil
}

// parseRunbooks reads Get.<class> out of a GraphQL response
func parseRunbooks(resp *models.GraphQLResponse, class string) ([]Runbook, error) {
	if resp == nil {
		return nil, errors.New("empty weaviate response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate query error: %s", strings.Join(msgs, "; "))
	}

	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, errors.New("weaviate response has no Get data")
	}
	objects, _ := get[class].([]interface{})

	hits := make([]Runbook, 0, len(objects))
	for _, o := range objects {
		obj, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		hit := Runbook{
			Title:   stringField(obj, "title"),
			Content: stringField(obj, "content"),
			Service: stringField(obj, "service"),
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if id := stringField(additional, "id"); strfmt.IsUUID(id) {
				hit.ID = strfmt.UUID(id)
			}
			if d, ok := additional["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}
