package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/strataplan/orchestrator/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewHTTPClient(config.LLMConfig{BaseURL: srv.URL, TimeoutSeconds: 5, MaxTokens: 1024}, zaptest.NewLogger(t))
	return c, srv
}

func TestGenerate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/query", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "say hi", req["query"])
		json.NewEncoder(w).Encode(map[string]interface{}{"response": "hi", "tokens_used": 3})
	})

	out, err := c.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestGenerateNon2xx(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateEmptyResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"response": ""})
	})
	_, err := c.Generate(context.Background(), "x")
	assert.Error(t, err)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1}\n"))
}

func TestUnmarshalLoose(t *testing.T) {
	var v struct {
		HasConflicts bool `json:"has_conflicts"`
	}
	require.NoError(t, UnmarshalLoose("```json\n{\"has_conflicts\": true}\n```", &v))
	assert.True(t, v.HasConflicts)

	require.NoError(t, UnmarshalLoose("Here is the result: {\"has_conflicts\": false}", &v))
	assert.False(t, v.HasConflicts)

	assert.Error(t, UnmarshalLoose("not json at all", &v))
	assert.Error(t, UnmarshalLoose("", &v))
}
