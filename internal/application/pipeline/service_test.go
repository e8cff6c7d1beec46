package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-intel/internal/application"
	appai "github.com/bryanwahyu/automaton-intel/internal/application/ai"
	"github.com/bryanwahyu/automaton-intel/internal/application/monitor"
	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	"github.com/bryanwahyu/automaton-intel/internal/domain/publication"
	"github.com/bryanwahyu/automaton-intel/internal/infra/jira"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const sevenParagraphs = `Exploits an unauthenticated command injection in Foo Manager.

Remote attackers gain code execution as root.

Remote Code Execution (RCE)

Foo Manager 2.0 through 2.4 on Linux

Upgrade Foo Manager to 2.5
Restrict access to the management port

TCP port 8443
POST /api/diag with shell metacharacters

alert tcp any any -> any 8443 (msg:"Foo Manager RCE"; content:"/api/diag"; sid:1000001;)`

type fakeSource struct {
	commits []modules.Commit
	files   map[string][]modules.ChangedFile
}

func (f *fakeSource) ListCommits(context.Context, time.Time) ([]modules.Commit, error) {
	return f.commits, nil
}

func (f *fakeSource) CommitFiles(_ context.Context, sha string) ([]modules.ChangedFile, error) {
	return f.files[sha], nil
}

type fakeFetcher struct {
	fail map[string]bool
}

func (f fakeFetcher) FetchContent(_ context.Context, m modules.Module) (string, error) {
	if f.fail[m.Path] {
		return "", errors.New("404 Not Found")
	}
	return "class MetasploitModule < Msf::Exploit::Remote\nend\n", nil
}

type fakeAI struct{ reply string }

func (f fakeAI) Generate(context.Context, string) (string, error) { return f.reply, nil }

type fakeAnalyzer struct {
	fail map[string]bool
}

func (f fakeAnalyzer) Analyze(_ context.Context, m modules.Module, _ string) (*analysis.Analysis, error) {
	if f.fail[m.Path] {
		return nil, analysis.ErrQuotaExceeded
	}
	a := analysis.ParseSections(m.Path, "summary\n\nimpact")
	return &a, nil
}

type fakeTickets struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeTickets) CreateTicket(_ context.Context, m modules.Module, _ *analysis.Analysis) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, m.Path)
	return "SOC-" + m.Name
}

type fakeWiki struct{ ok bool }

func (f fakeWiki) PublishAnalysis(context.Context, modules.Module, *analysis.Analysis) (string, bool) {
	if !f.ok {
		return "", false
	}
	return "98765", true
}

type memRepo struct {
	mu   sync.Mutex
	rows []*publication.Result
}

func (r *memRepo) Save(ctx context.Context, res *publication.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, res)
	return nil
}
func (r *memRepo) Latest(context.Context, int) ([]*publication.Result, error) { return r.rows, nil }
func (r *memRepo) ListByRun(context.Context, publication.RunID) ([]*publication.Result, error) {
	return r.rows, nil
}

type memArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *memArchive) PutJSON(ctx context.Context, key string, _ any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return "mem://" + key, nil
}

func (a *memArchive) PutText(ctx context.Context, key, _ string) (string, error) {
	return a.PutJSON(ctx, key, nil)
}

type countRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	pubs     map[string]int
	runs     int
}

func (c *countRecorder) ObserveModule(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[outcome]++
}

func (c *countRecorder) ObservePublication(sink string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.pubs[sink]++
	}
}

func (c *countRecorder) ObserveRun(time.Duration, int) { c.runs++ }

func watch() modules.Watch {
	return modules.Watch{
		Prefixes:   []string{"modules/auxiliary", "modules/exploits", "modules/post"},
		Extensions: []string{".rb"},
	}
}

// fooScenario: foo.rb added, then modified later in the window.
func fooScenario() *fakeSource {
	return &fakeSource{
		commits: []modules.Commit{
			{SHA: "c2", Date: now.Add(-1 * time.Hour)},
			{SHA: "c1", Date: now.Add(-72 * time.Hour)},
		},
		files: map[string][]modules.ChangedFile{
			"c1": {{Filename: "modules/exploits/foo.rb", Status: modules.StatusAdded, BlobURL: "https://github.com/x/blob/c1/modules/exploits/foo.rb"}},
			"c2": {
				{Filename: "modules/exploits/foo.rb", Status: modules.StatusModified, BlobURL: "https://github.com/x/blob/c2/modules/exploits/foo.rb"},
				{Filename: "lib/msf/core.rb", Status: modules.StatusModified},
			},
		},
	}
}

func TestRunEndToEndCreatesOneTicket(t *testing.T) {
	var labels [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Fields struct {
				Labels []string `json:"labels"`
			} `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		labels = append(labels, in.Fields.Labels)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"1","key":"SOC-101"}`))
	}))
	defer srv.Close()

	tickets, err := jira.NewClient(jira.Options{
		BaseURL: srv.URL, Email: "soc@example.com", APIToken: "t", Project: "SOC", Priority: "High",
	})
	require.NoError(t, err)

	clock := application.FixedClock{T: now}
	svc := &Service{
		Detector: &monitor.Service{Source: fooScenario(), Watch: watch(), Clock: clock},
		Fetcher:  fakeFetcher{},
		Analyzer: appai.NewService(fakeAI{reply: sevenParagraphs}, 0),
		Tickets:  tickets,
		Clock:    clock,
		Window:   8 * 24 * time.Hour,
		Sinks:    []string{SinkJira},
	}

	report, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, "foo.rb", res.Module.Name)
	assert.Equal(t, modules.StatusModified, res.Module.Status)
	assert.Equal(t, now.Add(-1*time.Hour), res.Module.LastCommit)

	a := res.Analysis
	require.NotNil(t, a)
	assert.Equal(t, "Exploits an unauthenticated command injection in Foo Manager.", a.Summary)
	assert.Equal(t, "Remote attackers gain code execution as root.", a.Impact)
	assert.Equal(t, "Remote Code Execution (RCE)", a.AttackType)
	assert.Equal(t, "Foo Manager 2.0 through 2.4 on Linux", a.AffectedSystems)
	assert.Equal(t, []string{"Upgrade Foo Manager to 2.5", "Restrict access to the management port"}, a.Recommendations)
	assert.Equal(t, []string{"TCP port 8443", "POST /api/diag with shell metacharacters"}, a.PotentialIndicators)
	assert.True(t, a.HasSnortRule())

	require.Len(t, labels, 1)
	assert.Contains(t, labels[0], "exploits")
	assert.Equal(t, "SOC-101", res.TicketKey)

	assert.Equal(t, 1, report.Run.Found)
	assert.Equal(t, 1, report.Run.Published)
	assert.Zero(t, report.Run.Failed)
}

func TestRunSkipsFailedModules(t *testing.T) {
	src := &fakeSource{
		commits: []modules.Commit{{SHA: "c1", Date: now}},
		files: map[string][]modules.ChangedFile{"c1": {
			{Filename: "modules/exploits/a.rb", Status: modules.StatusAdded},
			{Filename: "modules/exploits/b.rb", Status: modules.StatusAdded},
			{Filename: "modules/post/c.rb", Status: modules.StatusAdded},
		}},
	}
	tickets := &fakeTickets{}
	repo := &memRepo{}
	archive := &memArchive{}
	rec := &countRecorder{outcomes: map[string]int{}, pubs: map[string]int{}}

	svc := &Service{
		Detector: &monitor.Service{Source: src, Watch: watch(), Clock: application.FixedClock{T: now}},
		Fetcher:  fakeFetcher{fail: map[string]bool{"modules/exploits/a.rb": true}},
		Analyzer: fakeAnalyzer{fail: map[string]bool{"modules/exploits/b.rb": true}},
		Tickets:  tickets,
		Wiki:     fakeWiki{ok: true},
		Repo:     repo,
		Archive:  archive,
		Metrics:  rec,
		Clock:    application.FixedClock{T: now},
		Window:   24 * time.Hour,
		Workers:  3,
		Sinks:    []string{SinkJira, SinkConfluence},
	}

	report, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Run.Found)
	assert.Equal(t, 1, report.Run.Published)
	assert.Equal(t, 2, report.Run.Failed)

	// results keep detection order (sorted by path)
	assert.Contains(t, report.Results[0].Error, "404")
	assert.Contains(t, report.Results[1].Error, "quota")
	assert.Equal(t, "SOC-c.rb", report.Results[2].TicketKey)
	assert.Equal(t, "98765", report.Results[2].PageID)

	assert.Equal(t, []string{"modules/post/c.rb"}, tickets.seen)
	assert.Len(t, repo.rows, 3)
	assert.Contains(t, archive.keys, string(report.Run.ID)+"/results/modules/post/c.rb.json")
	assert.Contains(t, archive.keys, string(report.Run.ID)+"/source/modules/post/c.rb")
	assert.NotContains(t, archive.keys, string(report.Run.ID)+"/source/modules/exploits/a.rb")

	assert.Equal(t, 1, rec.outcomes[OutcomeFetchFailed])
	assert.Equal(t, 1, rec.outcomes[OutcomeAIFailed])
	assert.Equal(t, 1, rec.outcomes[OutcomePublished])
	assert.Equal(t, 1, rec.pubs[SinkJira])
	assert.Equal(t, 1, rec.pubs[SinkConfluence])
	assert.Equal(t, 1, rec.runs)
}

func TestRunDryRunAndSinkOverride(t *testing.T) {
	tickets := &fakeTickets{}
	svc := &Service{
		Detector: &monitor.Service{Source: fooScenario(), Watch: watch(), Clock: application.FixedClock{T: now}},
		Fetcher:  fakeFetcher{},
		Analyzer: fakeAnalyzer{},
		Tickets:  tickets,
		Wiki:     fakeWiki{ok: false},
		Window:   8 * 24 * time.Hour,
		Sinks:    []string{SinkJira},
	}

	report, err := svc.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, tickets.seen)
	assert.Equal(t, 1, report.Run.Analyzed)
	assert.Zero(t, report.Run.Published)

	// wiki only, and the wiki fails: analysed but unpublished
	report, err = svc.Run(context.Background(), RunOptions{Sinks: []string{"Confluence"}})
	require.NoError(t, err)
	assert.Empty(t, tickets.seen)
	assert.Equal(t, 1, report.Run.Analyzed)
	assert.Zero(t, report.Run.Published)
	assert.NotEqual(t, "", string(report.Run.ID))
}

func TestRunNothingFound(t *testing.T) {
	svc := &Service{
		Detector: &monitor.Service{Source: &fakeSource{}, Watch: watch(), Clock: application.FixedClock{T: now}},
		Fetcher:  fakeFetcher{},
		Analyzer: fakeAnalyzer{},
	}
	report, err := svc.Run(context.Background(), RunOptions{Window: time.Hour})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Zero(t, report.Run.Found)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &memRepo{}
	archive := &memArchive{}
	svc := &Service{
		Detector: &monitor.Service{Source: fooScenario(), Watch: watch(), Clock: application.FixedClock{T: now}},
		Fetcher:  fakeFetcher{},
		Analyzer: fakeAnalyzer{},
		Repo:     repo,
		Archive:  archive,
		Window:   8 * 24 * time.Hour,
	}
	report, err := svc.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Results, 1)
	assert.Nil(t, report.Results[0].Analysis)

	// cancelled modules still leave an audit row and an archived result
	require.Len(t, repo.rows, 1)
	assert.Equal(t, context.Canceled.Error(), repo.rows[0].Error)
	assert.Contains(t, archive.keys, string(report.Run.ID)+"/results/modules/exploits/foo.rb.json")
}

func TestKeys(t *testing.T) {
	m := modules.Module{Name: "foo.rb", Path: "modules/exploits/foo.rb", Category: "exploits"}
	assert.Equal(t, "r1/results/modules/exploits/foo.rb.json", ResultKey("r1", m))
	assert.Equal(t, "r1/source/modules/exploits/foo.rb", SourceKey("r1", m))
	assert.Equal(t, "r1/results/x.rb.json", ResultKey("r1", modules.Module{Name: "x.rb"}))

	// same file name on two platforms must not collide
	linux := modules.Module{Name: "cacti_rce.rb", Path: "modules/exploits/linux/http/cacti_rce.rb", Category: "exploits"}
	windows := modules.Module{Name: "cacti_rce.rb", Path: "modules/exploits/windows/http/cacti_rce.rb", Category: "exploits"}
	assert.NotEqual(t, ResultKey("r1", linux), ResultKey("r1", windows))
}
