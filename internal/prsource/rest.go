package prsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	defaultPerPage = 100

	// maxBody bounds a single page response
	maxBody = 8 << 20
)

// RESTConfig configures the GitHub REST source.
type RESTConfig struct {
	// BaseURL of the API (default: https://api.github.com)
	BaseURL string

	// Repo is "owner/name". When empty it is derived from RemoteURL.
	Repo string

	// RemoteURL returns the remote URL of a repository checkout
	RemoteURL func(ctx context.Context, repoPath string) (string, error)

	// Token is sent as a bearer token when set
	Token string

	// Limit caps the number of merged pull requests returned
	Limit int

	// RequestsPerSecond paces page requests (default: 2)
	RequestsPerSecond float64

	// Timeout for each HTTP request (default: 30s)
	Timeout time.Duration
}

// RESTSource pages through closed pull requests with the GitHub REST API.
type RESTSource struct {
	cfg     RESTConfig
	client  *http.Client
	limiter *rate.Limiter
	perPage int
}

// NewRESTSource creates a REST source with an HTTP/2 capable client.
func NewRESTSource(cfg RESTConfig) (*RESTSource, error) {
	if cfg.Repo == "" && cfg.RemoteURL == nil {
		return nil, fmt.Errorf("repository or remote lookup is required")
	}
	if cfg.Repo != "" && strings.Count(cfg.Repo, "/") != 1 {
		return nil, fmt.Errorf("repository must be owner/name (got %q)", cfg.Repo)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configuring HTTP/2 transport: %w", err)
	}

	return &RESTSource{
		cfg:     cfg,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		perPage: defaultPerPage,
	}, nil
}

// Name implements Source.
func (s *RESTSource) Name() string { return "api" }

// MergedPullRequests implements Source. Pages are requested most recently
// updated first, so paging stops once a page reaches pull requests last
// updated before since.
func (s *RESTSource) MergedPullRequests(ctx context.Context, repoPath string, since time.Time) ([]MergedPR, error) {
	slug, err := s.repoSlug(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	var prs []MergedPR
	for page := 1; ; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, next, err := s.fetchPage(ctx, slug, page)
		if err != nil {
			return nil, err
		}

		items := gjson.ParseBytes(body)
		if !items.IsArray() {
			return nil, fmt.Errorf("page %d: expected an array, got %s", page, items.Type)
		}

		exhausted := false
		var parseErr error
		items.ForEach(func(_, item gjson.Result) bool {
			if updated := item.Get("updated_at").Time(); !since.IsZero() && !updated.IsZero() && updated.Before(since) {
				exhausted = true
				return false
			}
			merged := item.Get("merged_at")
			if merged.Type == gjson.Null {
				return true // closed without merging
			}
			at, err := time.Parse(time.RFC3339, merged.String())
			if err != nil {
				parseErr = fmt.Errorf("pull request #%d: invalid merged_at %q", item.Get("number").Int(), merged.String())
				return false
			}
			prs = append(prs, MergedPR{Number: int(item.Get("number").Int()), MergedAt: at})
			return len(prs) <= s.cfg.Limit
		})
		if parseErr != nil {
			return nil, parseErr
		}

		if len(prs) > s.cfg.Limit {
			return nil, fmt.Errorf("%w: more than %d merged pull requests (raise pr.limit)", ErrTruncated, s.cfg.Limit)
		}
		if exhausted || !next || len(items.Array()) < s.perPage {
			return prs, nil
		}
	}
}

// repoSlug returns the configured owner/name or derives it from the remote.
func (s *RESTSource) repoSlug(ctx context.Context, repoPath string) (string, error) {
	if s.cfg.Repo != "" {
		return s.cfg.Repo, nil
	}
	remote, err := s.cfg.RemoteURL(ctx, repoPath)
	if err != nil {
		return "", err
	}
	return ParseRepoSlug(remote)
}

// fetchPage returns one page body and whether the API advertises a next page.
func (s *RESTSource) fetchPage(ctx context.Context, slug string, page int) ([]byte, bool, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/pulls", strings.TrimSuffix(s.cfg.BaseURL, "/"), slug)
	query := url.Values{
		"state":     {"closed"},
		"sort":      {"updated"},
		"direction": {"desc"},
		"per_page":  {strconv.Itoa(s.perPage)},
		"page":      {strconv.Itoa(page)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "pulse")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, false, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, false, fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(body) {
		return nil, false, fmt.Errorf("page %d: malformed JSON", page)
	}

	return body, strings.Contains(resp.Header.Get("Link"), `rel="next"`), nil
}
