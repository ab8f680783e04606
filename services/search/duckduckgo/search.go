package ddgsvc

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

const (
	defaultEndpoint   = "https://html.duckduckgo.com/html/"
	defaultMaxResults = 5
	requestTimeout    = 15 * time.Second
	userAgent         = "Mozilla/5.0 (compatible; studio/1.0)"
)

type Config struct {
	MaxResults int

	// for tests
	Endpoint   string
	HTTPClient *http.Client
}

// Provider scrapes the DuckDuckGo HTML results page. It needs no API key.
type Provider struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

var _ tutor.SearchProvider = (*Provider)(nil)

func New(conf Config) *Provider {
	p := &Provider{
		endpoint:   conf.Endpoint,
		maxResults: conf.MaxResults,
		client:     conf.HTTPClient,
	}
	if p.endpoint == "" {
		p.endpoint = defaultEndpoint
	}
	if p.maxResults <= 0 {
		p.maxResults = defaultMaxResults
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: requestTimeout}
	}
	return p
}

func (p *Provider) Search(ctx context.Context, query string) ([]string, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "duckduckgo search")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("duckduckgo search: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parsing results page")
	}
	return resultLinks(doc, p.maxResults), nil
}

// resultLinks walks the document and returns the targets of the "result__a" anchors, in page order.
func resultLinks(doc *html.Node, limit int) []string {
	links := make([]string, 0, limit)
	seen := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(links) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if link := resultTarget(attr(n, "href")); link != "" && !seen[link] {
				seen[link] = true
				links = append(links, link)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// resultTarget unwraps the redirect links ("//duckduckgo.com/l/?uddg=<target>") and drops ads.
func resultTarget(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		if u.Path == "/y.js" { // ad
			return ""
		}
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		if u, err = url.Parse(target); err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
