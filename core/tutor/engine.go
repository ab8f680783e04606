// Package tutor relays streamed, tool-augmented answers from a generation engine to a client.
package tutor

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Engine turns a prompt, a system instruction and a set of tools into streamed text.
	// Implementations run the tool loop themselves and record every tool invocation.
	Engine interface {
		Generate(ctx context.Context, req Request) (Generation, error)
	}

	Request struct {
		Prompt string
		System string
		Tools  []Tool
		// JSON asks the engine for a single JSON document instead of prose.
		JSON bool
	}

	// Generation is an in-flight generation.
	// Next returns the text fragments in order, then io.EOF once the text is exhausted.
	// Result blocks until the final record is available.
	// Close releases the generation; it is safe to call more than once.
	Generation interface {
		Next(ctx context.Context) (string, error)
		Result(ctx context.Context) (Result, error)
		Close() error
	}

	Result struct {
		Invocations []ToolInvocation
		Usage       Usage
	}

	// Usage sums the tokens of every turn of a generation.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}

	// ToolInvocation records one call the engine made to a tool.
	ToolInvocation struct {
		ID     string          `json:"id,omitempty"`
		Tool   string          `json:"tool"`
		Input  json.RawMessage `json:"input"`
		Output json.RawMessage `json:"output,omitempty"`
		Err    string          `json:"error,omitempty"`
	}

	// Tool is a named, schema-typed callable the engine may invoke.
	Tool interface {
		Definition() ToolDefinition
		Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
	}

	ToolDefinition struct {
		Name         string
		Description  string
		InputSchema  json.RawMessage
		OutputSchema json.RawMessage
	}
)

// FindTool returns the tool named name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, tool := range tools {
		if tool.Definition().Name == name {
			return tool, true
		}
	}
	return nil, false
}

// InvokeTool runs the named tool and records the invocation.
// Tool failures are recorded, not returned: the engine reports them back to the model.
func InvokeTool(ctx context.Context, tools []Tool, id, name string, input json.RawMessage) ToolInvocation {
	inv := ToolInvocation{ID: id, Tool: name, Input: input}

	tool, ok := FindTool(tools, name)
	if !ok {
		inv.Err = "unknown tool " + name
		return inv
	}
	out, err := tool.Invoke(ctx, input)
	if err != nil {
		inv.Err = err.Error()
		return inv
	}
	inv.Output = out
	return inv
}

// Collect drains gen and returns the whole text along with the final result.
func Collect(ctx context.Context, gen Generation) (string, Result, error) {
	defer func() { _ = gen.Close() }()

	var text strings.Builder
	for {
		frag, err := gen.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return text.String(), Result{}, errors.Wrap(err, "reading fragment")
		}
		text.WriteString(frag)
	}

	res, err := gen.Result(ctx)
	if err != nil {
		return text.String(), Result{}, errors.Wrap(err, "awaiting result")
	}
	return text.String(), res, nil
}
