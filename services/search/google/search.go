package googlesvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

// Google Programmable Search returns at most 10 results per page.
const maxResults = 10

type Config struct {
	APIKey     string
	CX         string // search engine ID
	MaxResults int

	// for tests
	Endpoint string
}

type Provider struct {
	svc        *customsearch.Service
	cx         string
	maxResults int64
}

var _ tutor.SearchProvider = (*Provider)(nil)

func New(ctx context.Context, conf Config) (*Provider, error) {
	if conf.APIKey == "" || conf.CX == "" {
		return nil, errors.New("google search: api key and cx are required")
	}

	opts := []option.ClientOption{option.WithAPIKey(conf.APIKey)}
	if conf.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(conf.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating custom search service")
	}

	n := conf.MaxResults
	if n <= 0 || n > maxResults {
		n = maxResults
	}
	return &Provider{svc: svc, cx: conf.CX, maxResults: int64(n)}, nil
}

func (p *Provider) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := p.svc.Cse.List().Cx(p.cx).Q(query).Num(p.maxResults).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "google search")
	}

	urls := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if link := strings.TrimSpace(item.Link); link != "" {
			urls = append(urls, link)
		}
	}
	return urls, nil
}
