package geminisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 2048
	defaultMaxTurns  = 4
)

var ErrTooManyTurns = errors.New("gemini: too many tool turns")

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	MaxTurns  int

	// for tests
	BaseURL    string
	HTTPClient *http.Client
}

// Engine generates text with the Gemini API, running the function calls the model makes.
type Engine struct {
	client    *genai.Client
	model     string
	maxTokens int32
	maxTurns  int
	logger    core.Logger
}

var _ tutor.Engine = (*Engine)(nil)

func New(ctx context.Context, conf Config, logger core.Logger) (*Engine, error) {
	if strings.TrimSpace(conf.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     conf.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: conf.HTTPClient,
	}
	if conf.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: conf.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini client")
	}

	eng := &Engine{
		client:    client,
		model:     conf.Model,
		maxTokens: int32(conf.MaxTokens),
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
	return eng, nil
}

func (eng *Engine) Generate(ctx context.Context, req tutor.Request) (tutor.Generation, error) {
	decls, err := declarations(req.Tools)
	if err != nil {
		return nil, err
	}

	conf := &genai.GenerateContentConfig{MaxOutputTokens: eng.maxTokens}
	if req.System != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(decls) > 0 {
		conf.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.JSON {
		conf.ResponseMIMEType = "application/json"
	}

	ctx, cancel := context.WithCancel(ctx)
	pipe := tutor.NewPipe(cancel)
	go func() {
		res, err := eng.run(ctx, pipe, req, conf)
		pipe.Finish(res, err)
	}()
	return pipe, nil
}

func (eng *Engine) run(ctx context.Context, pipe *tutor.Pipe, req tutor.Request, conf *genai.GenerateContentConfig) (tutor.Result, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	var res tutor.Result
	for i := 0; i < eng.maxTurns; i++ {
		modelParts, calls, used, err := eng.stream(ctx, pipe, contents, conf)
		res.Usage.InputTokens += used.InputTokens
		res.Usage.OutputTokens += used.OutputTokens
		if err != nil {
			return res, err
		}
		if len(calls) == 0 {
			return res, nil
		}

		respParts := make([]*genai.Part, 0, len(calls))
		for j, fc := range calls {
			id := fc.ID
			if id == "" {
				id = fmt.Sprintf("%s_%d_%d", fc.Name, i, j)
			}
			input, err := json.Marshal(fc.Args)
			if err != nil {
				return res, errors.Wrap(err, "encoding function call args")
			}
			inv := tutor.InvokeTool(ctx, req.Tools, id, fc.Name, input)
			res.Invocations = append(res.Invocations, inv)

			response := map[string]any{}
			if inv.Err != "" {
				eng.logger.Warn(fmt.Sprintf("gemini: tool %s failed: %s", inv.Tool, inv.Err))
				response["error"] = inv.Err
			} else {
				var output any
				_ = json.Unmarshal(inv.Output, &output)
				response["output"] = output
			}
			part := genai.NewPartFromFunctionResponse(fc.Name, response)
			part.FunctionResponse.ID = fc.ID
			respParts = append(respParts, part)
		}
		contents = append(contents,
			genai.NewContentFromParts(modelParts, genai.RoleModel),
			genai.NewContentFromParts(respParts, genai.RoleUser),
		)
	}
	return res, ErrTooManyTurns
}

// stream runs one turn, emitting its text as it arrives.
func (eng *Engine) stream(
	ctx context.Context,
	pipe *tutor.Pipe,
	contents []*genai.Content,
	conf *genai.GenerateContentConfig,
) (parts []*genai.Part, calls []*genai.FunctionCall, used tutor.Usage, err error) {
	for resp, err := range eng.client.Models.GenerateContentStream(ctx, eng.model, contents, conf) {
		if err != nil {
			return parts, calls, used, errors.Wrap(err, "gemini stream")
		}
		if resp.UsageMetadata != nil {
			// counts are cumulative within a turn, the last chunk holds the totals
			used.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			used.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}

		if text := resp.Text(); text != "" {
			parts = append(parts, genai.NewPartFromText(text))
			if err := pipe.Emit(ctx, text); err != nil {
				return parts, calls, used, err
			}
		}
		for _, fc := range resp.FunctionCalls() {
			calls = append(calls, fc)
			parts = append(parts, &genai.Part{FunctionCall: fc})
		}
	}
	return parts, calls, used, nil
}

func declarations(tools []tutor.Tool) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		params, err := toSchema(def.InputSchema)
		if err != nil {
			return nil, errors.Wrapf(err, "converting %s input schema", def.Name)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		})
	}
	return decls, nil
}

// jsonSchema is the subset of JSON schema Gemini function declarations understand.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
	Enum        []string               `json:"enum"`
}

func toSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var js jsonSchema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, err
	}
	return js.convert(), nil
}

func (js *jsonSchema) convert() *genai.Schema {
	if js == nil {
		return nil
	}
	s := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(js.Type)),
		Description: js.Description,
		Required:    js.Required,
		Enum:        js.Enum,
		Items:       js.Items.convert(),
	}
	if len(js.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, prop := range js.Properties {
			s.Properties[name] = prop.convert()
		}
	}
	return s
}
