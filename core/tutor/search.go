package tutor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// SearchToolName is the name the engine calls the web search tool by.
const SearchToolName = "search"

var errBlankQuery = errors.New("invalid search input: query is blank")

type (
	// SearchProvider returns the URLs of the web pages matching query, best match first.
	SearchProvider interface {
		Search(ctx context.Context, query string) ([]string, error)
	}

	SearchInput struct {
		Query string `json:"query" jsonschema:"required,minLength=1,description=The web search query."`
	}

	SearchOutput struct {
		Results []string `json:"results" jsonschema:"required,description=URLs of the matching web pages."`
	}

	// SearchTool exposes a SearchProvider to the engine. It holds no per-request state.
	SearchTool struct {
		provider SearchProvider
	}
)

var (
	searchInputSchema  = MustReflectSchema[SearchInput]()
	searchOutputSchema = MustReflectSchema[SearchOutput]()

	_ Tool = (*SearchTool)(nil)
)

func NewSearchTool(provider SearchProvider) *SearchTool {
	return &SearchTool{provider: provider}
}

func (t *SearchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: SearchToolName,
		Description: "Searches the web and returns the URLs of relevant pages. " +
			"Use it for recent events or facts you are not sure about.",
		InputSchema:  searchInputSchema.JSON(),
		OutputSchema: searchOutputSchema.JSON(),
	}
}

// Invoke validates input against the input schema and delegates to the provider.
// Provider failures are returned as is; retrying is up to the engine.
func (t *SearchTool) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	if err := searchInputSchema.Validate(input); err != nil {
		return nil, errors.Wrap(err, "invalid search input")
	}
	var in SearchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, errors.Wrap(err, "decoding search input")
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, errBlankQuery
	}

	results, err := t.provider.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "searching the web")
	}
	if results == nil {
		results = []string{}
	}
	return json.Marshal(SearchOutput{Results: results})
}

// CollectSources flattens the results of every successful search invocation, in invocation order,
// dropping empty entries. Duplicates are kept.
func CollectSources(invocations []ToolInvocation) []string {
	var sources []string
	for _, inv := range invocations {
		if inv.Tool != SearchToolName || inv.Err != "" || len(inv.Output) == 0 {
			continue
		}
		var out SearchOutput
		if err := json.Unmarshal(inv.Output, &out); err != nil {
			continue
		}
		for _, url := range out.Results {
			if url != "" {
				sources = append(sources, url)
			}
		}
	}
	return sources
}
