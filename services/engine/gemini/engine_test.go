package geminisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/tests"
)

type fakeAPI struct {
	mu     sync.Mutex
	turns  [][]string // SSE data payloads per request
	paths  []string
	bodies []map[string]any
}

func (api *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	api.bodies = append(api.bodies, body)
	api.paths = append(api.paths, r.URL.Path)

	if len(api.turns) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"no more turns","status":"INVALID_ARGUMENT"}}`)
		return
	}
	chunks := api.turns[0]
	api.turns = api.turns[1:]

	w.Header().Set("Content-Type", "text/event-stream")
	for _, chunk := range chunks {
		_, _ = fmt.Fprintf(w, "data: %s\r\n\r\n", chunk)
	}
}

func textChunk(text string, finish string) string {
	data, _ := json.Marshal(text)
	if finish != "" {
		return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"text":%s}]},"finishReason":%q}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":4}}`, data, finish)
	}
	return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"text":%s}]}}]}`, data)
}

func callChunk(query string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"search","args":{"query":%q}}}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":3}}`, query)
}

func newEngine(t *testing.T, api *fakeAPI, maxTurns int) *Engine {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	eng, err := New(context.Background(), Config{APIKey: "key", BaseURL: srv.URL, MaxTurns: maxTurns}, testutil.NewLogger())
	require.NoError(t, err)
	return eng
}

func TestEngine_Generate(t *testing.T) {
	api := &fakeAPI{turns: [][]string{
		{callChunk("mars rover")},
		{textChunk("Perseverance ", ""), textChunk("found a rock.", "STOP")},
	}}
	eng := newEngine(t, api, 0)
	search := testutil.NewSearch(map[string][]string{"mars rover": {"https://a.example", "https://b.example"}})

	gen, err := eng.Generate(context.Background(), tutor.Request{
		Prompt: "Question: mars",
		System: tutor.SearchInstruction,
		Tools:  []tutor.Tool{tutor.NewSearchTool(search)},
	})
	require.NoError(t, err)

	text, res, err := tutor.Collect(context.Background(), gen)
	require.NoError(t, err)
	assert.Equal(t, "Perseverance found a rock.", text)
	// both turns count
	assert.Equal(t, tutor.Usage{InputTokens: 17, OutputTokens: 7}, res.Usage)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, tutor.CollectSources(res.Invocations))

	require.Len(t, api.paths, 2)
	assert.True(t, strings.HasSuffix(api.paths[0], "models/"+defaultModel+":streamGenerateContent"), api.paths[0])

	// the second request carries the call and its response
	contents := api.bodies[1]["contents"].([]any)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	part := contents[2].(map[string]any)["parts"].([]any)[0].(map[string]any)
	fr := part["functionResponse"].(map[string]any)
	assert.Equal(t, "search", fr["name"])
}

func TestEngine_TooManyTurns(t *testing.T) {
	api := &fakeAPI{turns: [][]string{{callChunk("a")}, {callChunk("b")}, {textChunk("never", "STOP")}}}
	eng := newEngine(t, api, 2)
	search := testutil.NewSearch(nil)

	gen, err := eng.Generate(context.Background(), tutor.Request{Prompt: "q", Tools: []tutor.Tool{tutor.NewSearchTool(search)}})
	require.NoError(t, err)
	text, _, err := tutor.Collect(context.Background(), gen)
	assert.Equal(t, ErrTooManyTurns, errors.Cause(err))
	assert.Empty(t, text)
	assert.Equal(t, []string{"a", "b"}, search.Queries())
	assert.Len(t, api.paths, 2)
}

func TestEngine_APIError(t *testing.T) {
	eng := newEngine(t, &fakeAPI{}, 0)

	gen, err := eng.Generate(context.Background(), tutor.Request{Prompt: "q"})
	require.NoError(t, err)
	_, _, err = tutor.Collect(context.Background(), gen)
	assert.Error(t, err)
}

func TestToSchema(t *testing.T) {
	def := tutor.NewSearchTool(testutil.NewSearch(nil)).Definition()

	s, err := toSchema(def.InputSchema)
	require.NoError(t, err)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"query"}, s.Required)
	require.Contains(t, s.Properties, "query")
	assert.Equal(t, genai.TypeString, s.Properties["query"].Type)

	s, err = toSchema(def.OutputSchema)
	require.NoError(t, err)
	assert.Equal(t, genai.TypeArray, s.Properties["results"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["results"].Items.Type)

	s, err = toSchema(nil)
	assert.NoError(t, err)
	assert.Nil(t, s)
}
