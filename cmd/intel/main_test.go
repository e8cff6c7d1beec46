package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-intel/internal/application/pipeline"
	"github.com/bryanwahyu/automaton-intel/internal/config"
	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	"github.com/bryanwahyu/automaton-intel/internal/domain/publication"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	report := &pipeline.Report{
		Run: publication.Run{ID: "r1", Found: 2, Analyzed: 1, Published: 1, Failed: 1},
		Results: []*publication.Result{
			{Module: modules.Module{Name: "foo.rb"}, Analysis: &analysis.Analysis{}, TicketKey: "SOC-1", PageID: "42"},
			{Module: modules.Module{Name: "bar.rb"}, Error: "fetch: 404"},
		},
	}
	var buf bytes.Buffer
	printReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "Found 2 new modules to process")
	assert.Contains(t, out, "[OK] foo.rb ticket=SOC-1 page=42")
	assert.Contains(t, out, "[FAILED] bar.rb: fetch: 404")
	assert.Contains(t, out, "Failed:    1")
}

func TestPrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &pipeline.Report{})
	assert.Equal(t, "No new modules found\n", buf.String())
}

func TestPrintModules(t *testing.T) {
	var buf bytes.Buffer
	printModules(&buf, []modules.Module{{
		Path:       "modules/exploits/foo.rb",
		Status:     modules.StatusAdded,
		LastCommit: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
		URL:        "https://github.com/x",
	}})
	assert.Contains(t, buf.String(), "- modules/exploits/foo.rb (added, 2026-10-16T08:00:00Z) https://github.com/x")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, n := range []string{"run", "modules", "serve", "ticket-test"} {
		assert.True(t, names[n], n)
	}
}

func confluenceOnly() *config.Config {
	cfg := config.Default()
	cfg.AI.APIKey = "k"
	cfg.Confluence.BaseURL = "https://acme.atlassian.net/wiki"
	cfg.Confluence.Username = "me@example.com"
	cfg.Confluence.APIToken = "t"
	return cfg
}

func TestBuildAppWiresOnlyReadySinks(t *testing.T) {
	a, err := buildApp(context.Background(), confluenceOnly())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{config.SinkConfluence}, a.sinks)
	assert.Nil(t, a.pipeline.Tickets)
	assert.NotNil(t, a.pipeline.Wiki)
}

func TestBuildAppWiresJiraWhenCredentialsPresent(t *testing.T) {
	cfg := confluenceOnly()
	cfg.Jira.BaseURL = "https://acme.atlassian.net"
	cfg.Jira.Email = "soc@example.com"
	cfg.Jira.APIToken = "t"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	// jira is not a default sink but can still be requested per run
	assert.Equal(t, []string{config.SinkConfluence}, a.pipeline.Sinks)
	assert.ElementsMatch(t, []string{config.SinkJira, config.SinkConfluence}, a.sinks)
	assert.NotNil(t, a.pipeline.Tickets)
}
