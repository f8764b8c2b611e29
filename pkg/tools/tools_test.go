package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestRegistryKeepsOrderAndReplaces(t *testing.T) {
	first := NewCommandTool([]string{"df"})
	second := NewCommandTool([]string{"uptime"})
	runbooks := NewRunbookTool(&fakeSearcher{}, 0)

	r := NewRegistry(first, runbooks)
	r.Register(second)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "run_command", list[0].Name())
	assert.Same(t, second, list[0])
	assert.Equal(t, "search_runbooks", list[1].Name())

	got, ok := r.Get("search_runbooks")
	assert.True(t, ok)
	assert.Same(t, runbooks, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestCommandSucceeds(t *testing.T) {
	tool := NewCommandTool([]string{"echo"})

	res, err := tool.Execute(context.Background(), `{"command":"echo disk ok"}`)
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, "disk ok\n", res.Output)
}

func TestCommandNonZeroExitIsReportedFailure(t *testing.T) {
	tool := NewCommandTool([]string{"false"})

	res, err := tool.Execute(context.Background(), `{"command":"false"}`)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, "exit status 1", res.Message)

	failed, msg := res.Failure()
	assert.True(t, failed)
	assert.Equal(t, "exit status 1", msg)
}

func TestCommandOutsideAllowlist(t *testing.T) {
	tool := NewCommandTool([]string{"df"})

	res, err := tool.Execute(context.Background(), `{"command":"rm -rf /"}`)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, `"rm" is not allowed`)
}

func TestCommandTimeout(t *testing.T) {
	tool := NewCommandTool([]string{"sleep"}, WithCommandTimeout(50*time.Millisecond))

	res, err := tool.Execute(context.Background(), `{"command":"sleep 5"}`)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "timed out")
}

func TestCommandBadArguments(t *testing.T) {
	tool := NewCommandTool([]string{"df"})

	_, err := tool.Execute(context.Background(), `not json`)
	assert.Error(t, err)

	_, err = tool.Execute(context.Background(), `{"command":"   "}`)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab\n[output truncated]", truncate("abc", 2))
}

type fakeSearcher struct {
	hits  []Runbook
	err   error
	query string
	limit int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]Runbook, error) {
	f.query = query
	f.limit = limit
	return f.hits, f.err
}

func TestRunbookToolReturnsHits(t *testing.T) {
	searcher := &fakeSearcher{hits: []Runbook{{Title: "Disk full", Content: "Rotate logs", Service: "api"}}}
	tool := NewRunbookTool(searcher, 2)

	res, err := tool.Execute(context.Background(), `{"query":" disk full "}`)
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, "disk full", searcher.query)
	assert.Equal(t, 2, searcher.limit)
	assert.JSONEq(t, `[{"title":"Disk full","content":"Rotate logs","service":"api"}]`, res.Output)
}

func TestRunbookToolNoHits(t *testing.T) {
	res, err := NewRunbookTool(&fakeSearcher{}, 0).Execute(context.Background(), `{"query":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, "No matching runbooks.", res.Output)
}

func TestRunbookToolSearchFailure(t *testing.T) {
	tool := NewRunbookTool(&fakeSearcher{err: errors.New("connection refused")}, 0)

	res, err := tool.Execute(context.Background(), `{"query":"x"}`)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "connection refused")
}

func TestParseRunbooks(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"Runbook": []interface{}{
					map[string]interface{}{
						"title":   "Disk full",
						"content": "Rotate logs",
						"_additional": map[string]interface{}{
							"id":       "6f1a2b3c-1111-4222-8333-944455556666",
							"distance": 0.12,
						},
					},
					map[string]interface{}{
						"title":       "Bad id",
						"_additional": map[string]interface{}{"id": "not-a-uuid"},
					},
				},
			},
		},
	}

	hits, err := parseRunbooks(resp, "Runbook")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "6f1a2b3c-1111-4222-8333-944455556666", hits[0].ID.String())
	assert.InDelta(t, 0.12, hits[0].Distance, 1e-9)
	assert.Empty(t, hits[1].ID)

	_, err = parseRunbooks(&models.GraphQLResponse{Errors: []*models.GraphQLError{{Message: "no such class"}}}, "Runbook")
	assert.ErrorContains(t, err, "no such class")

	_, err = parseRunbooks(nil, "Runbook")
	assert.Error(t, err)
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5, 0.25}, nil
}

func TestWeaviateSearcherQueries(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/graphql", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		query = body.Query

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"Get":{"Ops":[{"title":"Disk full","content":"Rotate logs","service":"api"}]}}}`))
	}))
	defer server.Close()

	searcher, err := NewWeaviateSearcher(WeaviateConfig{
		Host:   strings.TrimPrefix(server.URL, "http://"),
		APIKey: "secret",
		Class:  "Ops",
	}, WithEmbedder(fixedEmbedder{}))
	require.NoError(t, err)

	hits, err := searcher.Search(context.Background(), "disk", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Disk full", hits[0].Title)

	assert.Contains(t, query, "Ops")
	assert.Contains(t, query, "nearVector")
}

func TestNewWeaviateSearcherRequiresHost(t *testing.T) {
	_, err := NewWeaviateSearcher(WeaviateConfig{})
	assert.Error(t, err)
}
