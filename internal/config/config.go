package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SinkJira       = "jira"
	SinkConfluence = "confluence"
)

type Config struct {
	Server struct {
		Port       int      `yaml:"port"`
		APIKeys    []string `yaml:"apiKeys"`
		RateBurst  int      `yaml:"rateBurst"`
		RatePerSec int      `yaml:"ratePerSec"`
	} `yaml:"server"`

	GitHub struct {
		Repo           string   `yaml:"repo"`
		Branch         string   `yaml:"branch"`
		APIBaseURL     string   `yaml:"apiBaseURL"`
		RawBaseURL     string   `yaml:"rawBaseURL"`
		Token          string   `yaml:"token"`
		WatchDirs      []string `yaml:"watchDirs"`
		Extensions     []string `yaml:"extensions"`
		Days           int      `yaml:"days"`
		MaxCommits     int      `yaml:"maxCommits"`
		RequestsPerSec float64  `yaml:"requestsPerSec"`
	} `yaml:"github"`

	AI struct {
		APIKey          string `yaml:"apiKey"`
		BaseURL         string `yaml:"baseURL"`
		Model           string `yaml:"model"`
		MaxContentChars int    `yaml:"maxContentChars"`
		MaxTokens       int    `yaml:"maxTokens"`
	} `yaml:"ai"`

	Jira struct {
		BaseURL       string `yaml:"baseURL"`
		Email         string `yaml:"email"`
		APIToken      string `yaml:"apiToken"`
		Project       string `yaml:"project"`
		IssueType     string `yaml:"issueType"`
		Priority      string `yaml:"priority"`
		AIDescription bool   `yaml:"aiDescription"`
	} `yaml:"jira"`

	Confluence struct {
		BaseURL        string `yaml:"baseURL"`
		Username       string `yaml:"username"`
		APIToken       string `yaml:"apiToken"`
		SpaceKey       string `yaml:"spaceKey"`
		ContainerTitle string `yaml:"containerTitle"`
	} `yaml:"confluence"`

	Pipeline struct {
		Sinks   []string `yaml:"sinks"`
		Workers int      `yaml:"workers"`
	} `yaml:"pipeline"`

	Database struct {
		Driver string `yaml:"driver"` // "", mysql, postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Error lists every required key that is missing. It is fatal: the run
// aborts before any network call.
type Error struct {
	Missing []string
}

func (e *Error) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.RateBurst = 5
	c.Server.RatePerSec = 1
	c.GitHub.Repo = "rapid7/metasploit-framework"
	c.GitHub.Branch = "master"
	c.GitHub.APIBaseURL = "https://api.github.com/"
	c.GitHub.RawBaseURL = "https://raw.githubusercontent.com/"
	c.GitHub.WatchDirs = []string{"modules/auxiliary", "modules/exploits", "modules/post"}
	c.GitHub.Extensions = []string{".rb"}
	c.GitHub.Days = 8
	c.GitHub.MaxCommits = 300
	c.GitHub.RequestsPerSec = 5
	c.AI.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	c.AI.Model = "gemini-2.0-flash"
	c.AI.MaxContentChars = 75000
	c.AI.MaxTokens = 2048
	c.Jira.Project = "SOC"
	c.Jira.IssueType = "Task"
	c.Jira.Priority = "High"
	c.Jira.AIDescription = true
	c.Confluence.SpaceKey = "SO"
	c.Confluence.ContainerTitle = "Daily Intel Reports"
	c.Pipeline.Sinks = []string{SinkConfluence}
	c.Pipeline.Workers = 1
	c.Minio.BucketName = "threat-intel"
	return &c
}

// Load baca file config.yaml (boleh tidak ada), lalu .env dan environment
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env only
	default:
		return nil, err
	}

	// .env is optional, like python-dotenv
	_ = godotenv.Load()
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.GitHub.Token, "GITHUB_TOKEN")
	set(&c.AI.APIKey, "AI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY")
	set(&c.AI.Model, "AI_MODEL")
	set(&c.Jira.BaseURL, "JIRA_BASE_URL")
	set(&c.Jira.Email, "JIRA_EMAIL")
	set(&c.Jira.APIToken, "JIRA_API_KEY")
	set(&c.Confluence.BaseURL, "CONFLUENCE_URL")
	set(&c.Confluence.Username, "CONFLUENCE_USERNAME")
	set(&c.Confluence.APIToken, "CONFLUENCE_API_TOKEN")
	set(&c.Database.DSN, "DATABASE_DSN")
	set(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Minio.SecretKey, "MINIO_SECRET_KEY")

	c.Jira.BaseURL = strings.TrimRight(c.Jira.BaseURL, "/")
	c.Confluence.BaseURL = strings.TrimRight(c.Confluence.BaseURL, "/")
}

// HasSink reports whether name is among the enabled sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Pipeline.Sinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Validate is a presence check only. It returns *Error naming every missing
// key for the enabled features.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	need(c.GitHub.Repo, "github.repo")
	if len(c.GitHub.WatchDirs) == 0 {
		missing = append(missing, "github.watchDirs")
	}
	if len(c.GitHub.Extensions) == 0 {
		missing = append(missing, "github.extensions")
	}
	need(c.AI.APIKey, "GOOGLE_API_KEY")
	need(c.AI.Model, "ai.model")

	if c.HasSink(SinkJira) {
		missing = append(missing, c.missingJira()...)
	}
	if c.HasSink(SinkConfluence) {
		missing = append(missing, c.missingConfluence()...)
	}
	if c.Database.Driver != "" {
		need(c.Database.DSN, "DATABASE_DSN")
	}
	if c.Minio.Endpoint != "" {
		need(c.Minio.AccessKey, "MINIO_ACCESS_KEY")
		need(c.Minio.SecretKey, "MINIO_SECRET_KEY")
	}

	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

// ValidateJira checks only the Jira credentials; used by the smoke test.
func (c *Config) ValidateJira() error {
	if missing := c.missingJira(); len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

// SinkReady reports whether the credentials for a sink are all present,
// whether or not the sink is enabled by default.
func (c *Config) SinkReady(name string) bool {
	switch strings.ToLower(name) {
	case SinkJira:
		return len(c.missingJira()) == 0
	case SinkConfluence:
		return len(c.missingConfluence()) == 0
	}
	return false
}

func (c *Config) missingJira() []string {
	return missingOf([][2]string{
		{c.Jira.BaseURL, "JIRA_BASE_URL"},
		{c.Jira.Email, "JIRA_EMAIL"},
		{c.Jira.APIToken, "JIRA_API_KEY"},
		{c.Jira.Project, "jira.project"},
	})
}

func (c *Config) missingConfluence() []string {
	return missingOf([][2]string{
		{c.Confluence.BaseURL, "CONFLUENCE_URL"},
		{c.Confluence.Username, "CONFLUENCE_USERNAME"},
		{c.Confluence.APIToken, "CONFLUENCE_API_TOKEN"},
		{c.Confluence.SpaceKey, "confluence.spaceKey"},
		{c.Confluence.ContainerTitle, "confluence.containerTitle"},
	})
}

func missingOf(pairs [][2]string) []string {
	var missing []string
	for _, kv := range pairs {
		if strings.TrimSpace(kv[0]) == "" {
			missing = append(missing, kv[1])
		}
	}
	return missing
}

// ValidateSinks checks sink names; used by the CLI and the HTTP trigger.
func ValidateSinks(sinks []string) error {
	for _, s := range sinks {
		switch strings.ToLower(s) {
		case SinkJira, SinkConfluence:
		default:
			return fmt.Errorf("invalid sink: %s (allowed: jira, confluence)", s)
		}
	}
	return nil
}
