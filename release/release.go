package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/getsavvyinc/ghinstall/fetch"
	"github.com/hashicorp/go-version"
)

// QueryType selects which endpoint the resolver queries for a tag.
type QueryType string

const (
	// QueryLatestRelease resolves the tag of the latest published release.
	QueryLatestRelease QueryType = "releases/latest"
	// QueryTags resolves a tag from the repository's tag list.
	QueryTags QueryType = "tags"
)

var ErrUnknownQueryType = errors.New("unknown query type")

// ParseQueryType maps the CLI's query-type string onto a QueryType.
func ParseQueryType(s string) (QueryType, error) {
	switch QueryType(s) {
	case QueryLatestRelease, QueryTags:
		return QueryType(s), nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownQueryType, s, QueryLatestRelease, QueryTags)
	}
}

// Asset is a binary file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Info holds the release metadata the installer needs.
type Info struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Getter resolves tags and lists release assets for a single owner/repo.
type Getter interface {
	// Resolve determines the concrete tag to install, per the configured QueryType.
	Resolve(ctx context.Context) (string, error)
	// LatestRelease returns the metadata of the latest published release.
	LatestRelease(ctx context.Context) (*Info, error)
	// ReleaseByTag returns the metadata of the release published under tag.
	ReleaseByTag(ctx context.Context, tag string) (*Info, error)
}

type githubGetter struct {
	owner     string
	repo      string
	queryType QueryType
	baseURL   string
	fetcher   fetch.Fetcher
}

var _ Getter = (*githubGetter)(nil)

type Opt func(*githubGetter)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Opt {
	return func(g *githubGetter) {
		g.baseURL = u
	}
}

func WithFetcher(f fetch.Fetcher) Opt {
	return func(g *githubGetter) {
		g.fetcher = f
	}
}

func WithQueryType(q QueryType) Opt {
	return func(g *githubGetter) {
		g.queryType = q
	}
}

func NewGetter(owner, repo string, opts ...Opt) Getter {
	g := &githubGetter{
		owner:     owner,
		repo:      repo,
		queryType: QueryLatestRelease,
		baseURL:   "https://api.github.com",
		fetcher:   fetch.NewFetcher(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var (
	ErrNoTagName = errors.New("release has no tag_name")
	ErrNoTags    = errors.New("repository has no tags")
)

func (g *githubGetter) Resolve(ctx context.Context) (string, error) {
	if g.queryType == QueryTags {
		return g.resolveFromTags(ctx)
	}

	info, err := g.LatestRelease(ctx)
	if err != nil {
		return "", err
	}
	return info.TagName, nil
}

func (g *githubGetter) LatestRelease(ctx context.Context) (*Info, error) {
	return g.getRelease(ctx, g.apiURL("releases/latest"))
}

func (g *githubGetter) ReleaseByTag(ctx context.Context, tag string) (*Info, error) {
	return g.getRelease(ctx, g.apiURL("releases/tags/"+tag))
}

func (g *githubGetter) apiURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s", strings.TrimRight(g.baseURL, "/"), g.owner, g.repo, path)
}

func (g *githubGetter) getRelease(ctx context.Context, url string) (*Info, error) {
	doc, err := g.fetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(doc, &info); err != nil {
		return nil, fmt.Errorf("decode release JSON: %w", err)
	}
	if info.TagName == "" {
		return nil, fmt.Errorf("%s/%s: %w", g.owner, g.repo, ErrNoTagName)
	}
	return &info, nil
}

// resolveFromTags picks the highest release version among the repository's
// tags. Tags that don't parse as versions are skipped; if none parse, the
// first tag the API lists wins.
func (g *githubGetter) resolveFromTags(ctx context.Context) (string, error) {
	doc, err := g.fetchDocument(ctx, g.apiURL("tags"))
	if err != nil {
		return "", err
	}

	var tags []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(doc, &tags); err != nil {
		return "", fmt.Errorf("decode tags JSON: %w", err)
	}
	if len(tags) == 0 {
		return "", fmt.Errorf("%s/%s: %w", g.owner, g.repo, ErrNoTags)
	}

	var (
		best     *version.Version
		bestName string
	)
	for _, tag := range tags {
		v, err := version.NewVersion(tag.Name)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestName = tag.Name
		}
	}
	if best == nil {
		return tags[0].Name, nil
	}
	return bestName, nil
}

// fetchDocument retrieves url into a scratch file via the fetch collaborator
// and returns its contents. The scratch file is removed on every path.
func (g *githubGetter) fetchDocument(ctx context.Context, url string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "ghinstall-api-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	scratch := filepath.Join(dir, "response.json")
	if err := g.fetcher.Fetch(ctx, url, scratch); err != nil {
		return nil, fmt.Errorf("fetch release metadata: %w", err)
	}

	doc, err := os.ReadFile(scratch)
	if err != nil {
		return nil, fmt.Errorf("read release metadata: %w", err)
	}
	return doc, nil
}
