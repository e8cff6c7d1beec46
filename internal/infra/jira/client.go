package jira

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jirav2 "github.com/ctreminiom/go-atlassian/v2/jira/v2"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// Describer renders the ticket body. The AI service implements it; when it
// fails the deterministic FallbackDescription is used.
type Describer interface {
	TicketDescription(ctx context.Context, m modules.Module, a *analysis.Analysis) (string, error)
}

type Options struct {
	BaseURL    string
	Email      string
	APIToken   string
	Project    string
	IssueType  string
	Priority   string
	Describer  Describer
	HTTPClient *http.Client
}

// Client creates issues through the Jira REST v2 API with basic auth.
type Client struct {
	api       *jirav2.Client
	project   string
	issueType string
	priority  string
	describer Describer
}

// Issue is the subset of issue fields this service sets.
type Issue struct {
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Labels      []string
}

func NewClient(opts Options) (*Client, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	api, err := jirav2.New(hc, strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	api.Auth.SetBasicAuth(opts.Email, opts.APIToken)

	issueType := opts.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	return &Client{
		api:       api,
		project:   opts.Project,
		issueType: issueType,
		priority:  opts.Priority,
		describer: opts.Describer,
	}, nil
}

// CreateTicket opens one issue for an analysed module and returns its key,
// or "" on failure. Errors are logged here and never returned.
func (c *Client) CreateTicket(ctx context.Context, m modules.Module, a *analysis.Analysis) string {
	key, err := c.CreateIssue(ctx, Issue{
		Summary:     "New Metasploit Module: " + m.Name,
		Description: c.description(ctx, m, a),
		IssueType:   c.issueType,
		Priority:    c.priority,
		Labels:      Labels(m),
	})
	if err != nil {
		slog.Error("jira: create ticket failed", "module", m.Path, "err", err)
		return ""
	}
	slog.Info("jira: ticket created", "module", m.Path, "key", key)
	return key
}

// SmokeTest creates a throwaway "Hello World" task to verify credentials and
// project access.
func (c *Client) SmokeTest(ctx context.Context) (string, error) {
	return c.CreateIssue(ctx, Issue{
		Summary:     "Hello World",
		Description: "This is a test issue created by automaton-intel",
		IssueType:   c.issueType,
	})
}

// CreateIssue posts /rest/api/2/issue and returns the new issue key.
func (c *Client) CreateIssue(ctx context.Context, in Issue) (string, error) {
	fields := &models.IssueFieldsSchemeV2{
		Project:     &models.ProjectScheme{Key: c.project},
		Summary:     in.Summary,
		Description: in.Description,
		IssueType:   &models.IssueTypeScheme{Name: in.IssueType},
		Labels:      in.Labels,
	}
	if in.Priority != "" {
		fields.Priority = &models.PriorityScheme{Name: in.Priority}
	}

	created, resp, err := c.api.Issue.Create(ctx, &models.IssueSchemeV2{Fields: fields}, nil)
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("jira issue creation failed: status %d: %s: %w", resp.Code, strings.TrimSpace(resp.Bytes.String()), err)
		}
		return "", fmt.Errorf("jira issue creation failed: %w", err)
	}
	if created == nil || created.Key == "" {
		return "", fmt.Errorf("jira response without issue key: %s", strings.TrimSpace(resp.Bytes.String()))
	}
	return created.Key, nil
}

func (c *Client) description(ctx context.Context, m modules.Module, a *analysis.Analysis) string {
	if c.describer != nil {
		d, err := c.describer.TicketDescription(ctx, m, a)
		if err == nil {
			return d
		}
		slog.Warn("jira: ai description failed, using fallback", "module", m.Path, "err", err)
	}
	return FallbackDescription(m, a)
}

// Labels returns the fixed taxonomy plus the module category.
func Labels(m modules.Module) []string {
	labels := []string{"metasploit", "security"}
	if m.Category != "" {
		labels = append(labels, m.Category)
	}
	return labels
}

// FallbackDescription builds the ticket body straight from the analysis
// fields, with the same five headings the AI rendering uses.
func FallbackDescription(m modules.Module, a *analysis.Analysis) string {
	var b strings.Builder
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "%s\n\n", a.Summary)
	fmt.Fprintf(&b, "* Module: %s\n* Type: %s\n* Path: %s\n* Attack type: %s\n\n", m.Name, m.Category, m.Path, a.AttackType)

	b.WriteString("## Impact Assessment\n")
	fmt.Fprintf(&b, "%s\n\nAffected systems: %s\n\n", a.Impact, a.AffectedSystems)

	b.WriteString("## Detection Capabilities\n")
	for _, ind := range a.PotentialIndicators {
		fmt.Fprintf(&b, "* %s\n", ind)
	}
	if a.HasSnortRule() {
		fmt.Fprintf(&b, "\n{code}\n%s\n{code}\n", a.DraftSnortRule)
	} else {
		b.WriteString("\nNo Snort rule drafted.\n")
	}
	b.WriteString("\n")

	b.WriteString("## Recommended Actions\n")
	for _, r := range a.Recommendations {
		fmt.Fprintf(&b, "* %s\n", r)
	}
	b.WriteString("\n")

	b.WriteString("## References\n")
	fmt.Fprintf(&b, "* %s\n", m.URL)
	return b.String()
}
