package confluence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	confluenceapi "github.com/ctreminiom/go-atlassian/v2/confluence"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// TimestampLayout is appended to generated titles, e.g. 20261017_120000.
const TimestampLayout = "20060102_150405"

type Options struct {
	BaseURL        string // https://acme.atlassian.net/wiki
	Username       string
	APIToken       string
	SpaceKey       string
	ContainerTitle string
	HTTPClient     *http.Client
	Now            func() time.Time
}

// Client publishes analysis pages under a single container page.
//
// The container is resolved once per process and cached. Two processes
// starting at the same time can both miss it and both create one; the REST
// API has no conditional create.
type Client struct {
	api   *confluenceapi.Client
	space string
	title string
	now   func() time.Time

	mu          sync.Mutex
	containerID string
}

// StatusError is a non-2xx answer from Confluence.
type StatusError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("confluence %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

func NewClient(opts Options) (*Client, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	// the library adds the wiki/rest/api prefix itself
	site := strings.TrimSuffix(strings.TrimRight(opts.BaseURL, "/"), "/wiki")
	api, err := confluenceapi.New(hc, site)
	if err != nil {
		return nil, fmt.Errorf("confluence client: %w", err)
	}
	api.Auth.SetBasicAuth(opts.Username, opts.APIToken)

	return &Client{
		api:   api,
		space: opts.SpaceKey,
		title: opts.ContainerTitle,
		now:   now,
	}, nil
}

// PublishAnalysis creates one child page for the module. Errors are logged,
// including the response status and body, and reported as ok=false.
func (c *Client) PublishAnalysis(ctx context.Context, m modules.Module, a *analysis.Analysis) (string, bool) {
	parent, err := c.EnsureContainer(ctx)
	if err != nil {
		logError("confluence: ensure container failed", m.Path, err)
		return "", false
	}

	title := fmt.Sprintf("Metasploit Module Analysis: %s (%s)", m.Name, c.now().Format(TimestampLayout))
	id, err := c.CreatePage(ctx, title, RenderAnalysis(m, a), parent)
	if err != nil {
		logError("confluence: create page failed", m.Path, err)
		return "", false
	}
	slog.Info("confluence: page created", "module", m.Path, "title", title, "id", id)
	return id, true
}

// EnsureContainer returns the container page ID, creating the page when
// neither the exact title nor an earlier timestamped copy exists.
func (c *Client) EnsureContainer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.containerID != "" {
		return c.containerID, nil
	}

	id, err := c.findExact(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		if id, err = c.findTimestamped(ctx); err != nil {
			return "", err
		}
	}
	if id != "" {
		slog.Info("confluence: found container", "title", c.title, "space", c.space, "id", id)
		c.containerID = id
		return id, nil
	}

	if err := c.checkSpace(ctx); err != nil {
		return "", err
	}
	title := fmt.Sprintf("%s (%s)", c.title, c.now().Format(TimestampLayout))
	id, err = c.CreatePage(ctx, title, containerBody(c.title), "")
	if err != nil {
		return "", err
	}
	slog.Info("confluence: created container", "title", title, "space", c.space, "id", id)
	c.containerID = id
	return id, nil
}

// findExact cari halaman dengan judul persis di space yang sama
func (c *Client) findExact(ctx context.Context) (string, error) {
	list, resp, err := c.api.Content.Gets(ctx, &models.GetContentOptionsScheme{
		ContextType: "page",
		SpaceKey:    c.space,
		Title:       c.title,
		Status:      []string{"current"},
		Expand:      []string{"space"},
	}, 0, 25)
	if err != nil {
		return "", wrap("search content", resp, err)
	}
	for _, r := range list.Results {
		if r.Title == c.title && spaceKey(r) == c.space {
			return r.ID, nil
		}
	}
	if len(list.Results) > 0 {
		slog.Warn("confluence: pages with container title exist outside the space", "title", c.title, "space", c.space)
	}
	return "", nil
}

// findTimestamped looks for a container created by an earlier run, titled
// "{title} (YYYYMMDD_HHMMSS)". The oldest one wins.
func (c *Client) findTimestamped(ctx context.Context) (string, error) {
	cql := fmt.Sprintf(`space = "%s" AND type = page AND title ~ "%s"`, cqlEscape(c.space), cqlEscape(c.title))
	list, resp, err := c.api.Content.Search(ctx, cql, "", []string{"space"}, "", 100)
	if err != nil {
		return "", wrap("cql search", resp, err)
	}

	prefix := c.title + " ("
	var found []*models.ContentScheme
	for _, r := range list.Results {
		if key := spaceKey(r); key != "" && key != c.space {
			continue
		}
		if strings.HasPrefix(r.Title, prefix) && strings.HasSuffix(r.Title, ")") {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return "", nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Title < found[j].Title })
	return found[0].ID, nil
}

func (c *Client) checkSpace(ctx context.Context) error {
	_, resp, err := c.api.Space.Get(ctx, c.space, nil)
	if err != nil {
		return wrap("get space", resp, err)
	}
	return nil
}

// CreatePage creates a page in storage format, under parentID when set.
func (c *Client) CreatePage(ctx context.Context, title, body, parentID string) (string, error) {
	page := &models.ContentScheme{
		Type:  "page",
		Title: title,
		Space: &models.SpaceScheme{Key: c.space},
		Body: &models.BodyScheme{
			Storage: &models.BodyNodeScheme{Value: body, Representation: "storage"},
		},
	}
	if parentID != "" {
		page.Ancestors = []*models.ContentScheme{{ID: parentID}}
	}

	created, resp, err := c.api.Content.Create(ctx, page)
	if err != nil {
		return "", wrap("create page", resp, err)
	}
	return created.ID, nil
}

// wrap keeps the response status and body next to the library error.
func wrap(op string, resp *models.ResponseScheme, err error) error {
	if resp != nil && resp.Code >= http.StatusMultipleChoices {
		return &StatusError{Op: op, Status: resp.Code, Body: strings.TrimSpace(resp.Bytes.String()), Err: err}
	}
	return fmt.Errorf("confluence %s: %w", op, err)
}

func spaceKey(r *models.ContentScheme) string {
	if r == nil || r.Space == nil {
		return ""
	}
	return r.Space.Key
}

func logError(msg, module string, err error) {
	var se *StatusError
	if errors.As(err, &se) {
		slog.Error(msg, "module", module, "op", se.Op, "status", se.Status, "body", se.Body)
		return
	}
	slog.Error(msg, "module", module, "err", err)
}

func cqlEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
