package tutor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchFunc func(ctx context.Context, query string) ([]string, error)

func (f searchFunc) Search(ctx context.Context, query string) ([]string, error) { return f(ctx, query) }

func TestSearchTool_Invoke(t *testing.T) {
	var queries []string
	tool := NewSearchTool(searchFunc(func(_ context.Context, query string) ([]string, error) {
		queries = append(queries, query)
		if query == "nothing" {
			return nil, nil
		}
		if query == "fail" {
			return nil, errors.New("quota exceeded")
		}
		return []string{"https://a.example"}, nil
	}))

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "results", input: `{"query":" mars "}`, want: `{"results":["https://a.example"]}`},
		{name: "no results", input: `{"query":"nothing"}`, want: `{"results":[]}`},
		{name: "provider error", input: `{"query":"fail"}`, wantErr: true},
		{name: "missing query", input: `{}`, wantErr: true},
		{name: "empty input", input: ``, wantErr: true},
		{name: "empty query", input: `{"query":""}`, wantErr: true},
		{name: "blank query", input: `{"query":" \t\n "}`, wantErr: true},
		{name: "wrong type", input: `{"query":42}`, wantErr: true},
		{name: "unknown field", input: `{"query":"mars","page":2}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tool.Invoke(context.Background(), json.RawMessage(tc.input))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(out))
		})
	}
	assert.Equal(t, []string{"mars", "nothing", "fail"}, queries)

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"   "}`))
	assert.Equal(t, errBlankQuery, err)
}

func TestCollectSources(t *testing.T) {
	invocations := []ToolInvocation{
		{Tool: SearchToolName, Output: json.RawMessage(`{"results":["a",""]}`)},
		{Tool: "calculator", Output: json.RawMessage(`{"results":["x"]}`)},
		{Tool: SearchToolName, Err: "quota exceeded"},
		{Tool: SearchToolName},
		{Tool: SearchToolName, Output: json.RawMessage(`not json`)},
		{Tool: SearchToolName, Output: json.RawMessage(`{"results":["b","a"]}`)},
	}
	assert.Equal(t, []string{"a", "b", "a"}, CollectSources(invocations))
	assert.Nil(t, CollectSources(nil))
}

func TestInvokeTool(t *testing.T) {
	tools := []Tool{NewSearchTool(searchFunc(func(context.Context, string) ([]string, error) {
		return []string{"u"}, nil
	}))}

	inv := InvokeTool(context.Background(), tools, "id1", SearchToolName, json.RawMessage(`{"query":"q"}`))
	assert.Equal(t, "id1", inv.ID)
	assert.Empty(t, inv.Err)
	assert.JSONEq(t, `{"results":["u"]}`, string(inv.Output))

	inv = InvokeTool(context.Background(), tools, "id2", "weather", json.RawMessage(`{}`))
	assert.Equal(t, "unknown tool weather", inv.Err)
	assert.Nil(t, inv.Output)
}

func TestReflectSchema(t *testing.T) {
	type payload struct {
		Name  string `json:"name" jsonschema:"required,minLength=2"`
		Count int    `json:"count,omitempty" jsonschema:"minimum=0"`
	}
	schema, err := ReflectSchema[payload]()
	require.NoError(t, err)

	assert.NoError(t, schema.Validate(json.RawMessage(`{"name":"ab","count":1}`)))
	assert.Error(t, schema.Validate(json.RawMessage(`{"name":"a"}`)))
	assert.Error(t, schema.Validate(json.RawMessage(`{"count":-1,"name":"ab"}`)))
	assert.Error(t, schema.Validate(json.RawMessage(`{"count":1}`)))
	assert.Error(t, schema.Validate(json.RawMessage(`{"name":`)))
}
