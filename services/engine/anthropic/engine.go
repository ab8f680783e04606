package anthropicsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 2048
	defaultMaxTurns  = 4

	jsonInstruction = "Reply with JSON only."
)

var ErrTooManyTurns = errors.New("anthropic: too many tool turns")

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	MaxTurns  int

	// for tests
	BaseURL    string
	HTTPClient *http.Client
}

// Engine generates text with the Anthropic Messages API.
// It streams every turn and runs the tools the model asks for in between.
type Engine struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxTurns  int
	logger    core.Logger
}

var _ tutor.Engine = (*Engine)(nil)

func New(conf Config, logger core.Logger) (*Engine, error) {
	apiKey := strings.TrimSpace(conf.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}

	eng := &Engine{
		model:     conf.Model,
		maxTokens: int64(conf.MaxTokens),
		maxTurns:  conf.MaxTurns,
		logger:    logger,
	}
	if eng.model == "" {
		eng.model = defaultModel
	}
	if eng.maxTokens <= 0 {
		eng.maxTokens = defaultMaxTokens
	}
	if eng.maxTurns <= 0 {
		eng.maxTurns = defaultMaxTurns
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if conf.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(conf.BaseURL))
	}
	if conf.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(conf.HTTPClient))
	}
	eng.client = anthropic.NewClient(opts...)
	return eng, nil
}

func (eng *Engine) Generate(ctx context.Context, req tutor.Request) (tutor.Generation, error) {
	ctx, cancel := context.WithCancel(ctx)
	pipe := tutor.NewPipe(cancel)
	go func() {
		res, err := eng.run(ctx, pipe, req)
		pipe.Finish(res, err)
	}()
	return pipe, nil
}

type toolCall struct {
	id    string
	name  string
	input strings.Builder
}

type turn struct {
	text       strings.Builder
	calls      []*toolCall
	stopReason string
	usage      tutor.Usage
}

func (eng *Engine) run(ctx context.Context, pipe *tutor.Pipe, req tutor.Request) (tutor.Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(eng.model),
		MaxTokens: eng.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Tools:     toolParams(req.Tools),
	}
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n" + jsonInstruction)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var res tutor.Result
	for i := 0; i < eng.maxTurns; i++ {
		t, err := eng.stream(ctx, pipe, params)
		res.Usage.InputTokens += t.usage.InputTokens
		res.Usage.OutputTokens += t.usage.OutputTokens
		if err != nil {
			return res, err
		}
		if t.stopReason != string(anthropic.StopReasonToolUse) || len(t.calls) == 0 {
			return res, nil
		}

		// feed the tool results back
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.calls)+1)
		if t.text.Len() > 0 {
			blocks = append(blocks, anthropic.NewTextBlock(t.text.String()))
		}
		results := make([]anthropic.ContentBlockParamUnion, 0, len(t.calls))
		for _, call := range t.calls {
			input := json.RawMessage(call.input.String())
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(call.id, input, call.name))

			inv := tutor.InvokeTool(ctx, req.Tools, call.id, call.name, input)
			res.Invocations = append(res.Invocations, inv)
			if inv.Err != "" {
				eng.logger.Warn(fmt.Sprintf("anthropic: tool %s failed: %s", inv.Tool, inv.Err))
				results = append(results, anthropic.NewToolResultBlock(call.id, inv.Err, true))
			} else {
				results = append(results, anthropic.NewToolResultBlock(call.id, string(inv.Output), false))
			}
		}
		params.Messages = append(params.Messages,
			anthropic.NewAssistantMessage(blocks...),
			anthropic.NewUserMessage(results...),
		)
	}
	return res, ErrTooManyTurns
}

// stream runs one turn, emitting its text as it arrives.
func (eng *Engine) stream(ctx context.Context, pipe *tutor.Pipe, params anthropic.MessageNewParams) (*turn, error) {
	stream := eng.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	t := new(turn)
	var current *toolCall
	for stream.Next() {
		ev := stream.Current()
		switch ev.Type {
		case "message_start":
			t.usage.InputTokens += int(ev.Message.Usage.InputTokens)
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				current = &toolCall{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text == "" {
					continue
				}
				t.text.WriteString(ev.Delta.Text)
				if err := pipe.Emit(ctx, ev.Delta.Text); err != nil {
					return t, err
				}
			case "input_json_delta":
				if current != nil {
					current.input.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if current != nil {
				t.calls = append(t.calls, current)
				current = nil
			}
		case "message_delta":
			t.stopReason = string(ev.Delta.StopReason)
			t.usage.OutputTokens += int(ev.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return t, errors.Wrap(err, "anthropic stream")
	}
	return t, nil
}

func toolParams(tools []tutor.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	params := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		param := anthropic.ToolParam{
			Name:        def.Name,
			InputSchema: inputSchema(def.InputSchema),
		}
		if def.Description != "" {
			param.Description = anthropic.String(def.Description)
		}
		params = append(params, anthropic.ToolUnionParam{OfTool: &param})
	}
	return params
}

func inputSchema(raw json.RawMessage) anthropic.ToolInputSchemaParam {
	schema := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &schema)
	}

	param := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				param.Required = append(param.Required, s)
			}
		}
	}

	extras := map[string]any{}
	for key, value := range schema {
		switch {
		case key == "properties", key == "required", key == "type":
		case strings.HasPrefix(key, "$"): // $schema, $id
		default:
			extras[key] = value
		}
	}
	if len(extras) > 0 {
		param.ExtraFields = extras
	}
	return param
}
