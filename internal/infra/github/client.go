package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/github"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

const (
	perPage      = 100
	maxErrorBody = 512
)

// Options for NewClient. Zero values fall back to public GitHub.
type Options struct {
	Repo           string // owner/name
	Branch         string
	Token          string
	APIBaseURL     string
	RawBaseURL     string
	MaxCommits     int
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Client implements modules.Source and modules.ContentFetcher.
type Client struct {
	api        *gh.Client
	http       *http.Client
	owner      string
	name       string
	branch     string
	rawBase    string
	maxCommits int
}

func NewClient(opts Options) (*Client, error) {
	owner, name, ok := strings.Cut(opts.Repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repo %q, want owner/name", opts.Repo)
	}
	if opts.Token == "" {
		slog.Warn("GITHUB_TOKEN not set, API rate limits will be significantly lower")
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	hc := &http.Client{
		Timeout: base.Timeout,
		Transport: &transport{
			base:    base.Transport,
			token:   opts.Token,
			limiter: rate.NewLimiter(limit, 1),
		},
	}

	api := gh.NewClient(hc)
	if opts.APIBaseURL != "" {
		u, err := url.Parse(withSlash(opts.APIBaseURL))
		if err != nil {
			return nil, fmt.Errorf("github api url: %w", err)
		}
		api.BaseURL = u
	}

	rawBase := opts.RawBaseURL
	if rawBase == "" {
		rawBase = "https://raw.githubusercontent.com/"
	}
	branch := opts.Branch
	if branch == "" {
		branch = "master"
	}
	maxCommits := opts.MaxCommits
	if maxCommits <= 0 {
		maxCommits = perPage
	}

	return &Client{
		api:        api,
		http:       hc,
		owner:      owner,
		name:       name,
		branch:     branch,
		rawBase:    withSlash(rawBase),
		maxCommits: maxCommits,
	}, nil
}

// ListCommits pages through the commit list until it runs out or MaxCommits
// is reached.
func (c *Client) ListCommits(ctx context.Context, since time.Time) ([]modules.Commit, error) {
	opt := &gh.CommitsListOptions{
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	var out []modules.Commit
	for {
		page, resp, err := c.api.Repositories.ListCommits(ctx, c.owner, c.name, opt)
		if err != nil {
			return nil, fmt.Errorf("list commits: %w", err)
		}
		for _, rc := range page {
			out = append(out, modules.Commit{SHA: rc.GetSHA(), Date: commitDate(rc)})
			if len(out) >= c.maxCommits {
				slog.Warn("commit cap reached, older commits in the window are skipped",
					"max_commits", c.maxCommits, "since", since.UTC().Format(time.RFC3339))
				return out, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opt.Page = resp.NextPage
	}
}

func (c *Client) CommitFiles(ctx context.Context, sha string) ([]modules.ChangedFile, error) {
	rc, _, err := c.api.Repositories.GetCommit(ctx, c.owner, c.name, sha)
	if err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}
	files := make([]modules.ChangedFile, 0, len(rc.Files))
	for _, f := range rc.Files {
		files = append(files, modules.ChangedFile{
			Filename: f.GetFilename(),
			Status:   modules.Status(f.GetStatus()),
			BlobURL:  f.GetBlobURL(),
		})
	}
	return files, nil
}

// FetchContent reads the module from the raw-content host. No retry.
func (c *Client) FetchContent(ctx context.Context, m modules.Module) (string, error) {
	u := c.rawBase + c.owner + "/" + c.name + "/" + c.branch + "/" + m.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3.raw")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", m.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", m.Path, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d: %s", m.Path, resp.StatusCode, truncate(string(body), maxErrorBody))
	}
	return string(body), nil
}

// committer date is when the change landed on the branch; author date can be
// much older for rebased work
func commitDate(rc *gh.RepositoryCommit) time.Time {
	commit := rc.GetCommit()
	if d := commit.GetCommitter().GetDate(); !d.IsZero() {
		return d
	}
	return commit.GetAuthor().GetDate()
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
