package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up at the repository root.
const DefaultFileName = ".pulse.yaml"

// Config is the full pulse configuration loaded from YAML and the environment.
type Config struct {
	// DocumentPath is where the persisted document lives, relative to the repository root
	// Default: "dashboard/metrics.json"
	DocumentPath string `yaml:"document_path"`

	// Strict makes a failed probe abort the run instead of preserving the previous section
	// Default: false
	Strict bool `yaml:"strict"`

	Period         PeriodConfig         `yaml:"period"`
	Repo           RepoConfig           `yaml:"repo"`
	Publish        PublishConfig        `yaml:"publish"`
	PR             PRConfig             `yaml:"pr"`
	Assistant      AssistantConfig      `yaml:"assistant"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	App            AppConfig            `yaml:"app"`
	Log            LoggerConfig         `yaml:"log"`
}

// PeriodConfig sets the default collection window.
type PeriodConfig struct {
	// Start is the fixed project start date (YYYY-MM-DD)
	// Default: "2025-01-01"
	Start string `yaml:"start"`
}

// RepoConfig feeds the repository resolution chain.
type RepoConfig struct {
	// Path is the conventional repository location; empty means the working directory
	Path string `yaml:"path"`

	// Name is looked up as a sibling of the working directory
	Name string `yaml:"name"`
}

// PublishConfig controls the commit-and-push step.
type PublishConfig struct {
	// Enabled controls whether the document is committed and pushed
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Remote to sync with and push to
	// Default: "origin"
	Remote string `yaml:"remote"`

	// Branch to push; empty means the current branch
	Branch string `yaml:"branch"`
}

// PRConfig selects the pull-request data source.
type PRConfig struct {
	// Source is "gh", "api" or "none"
	// Default: "gh"
	Source string `yaml:"source"`

	// Limit caps the number of merged pull requests fetched
	// Default: 1000, Range: 1-10000
	Limit int `yaml:"limit"`

	// Repo is "owner/name" for the api source; derived from the origin remote when empty
	Repo string `yaml:"repo"`

	// APIURL is the GitHub REST base URL
	// Default: "https://api.github.com"
	APIURL string `yaml:"api_url"`

	// RequestsPerSecond paces REST page requests
	// Default: 2
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Timeout bounds the whole lookup
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// AssistantConfig locates assistant session logs.
type AssistantConfig struct {
	// SessionDir holds per-project session directories; "~" is expanded
	// Default: "~/.claude/projects"
	SessionDir string `yaml:"session_dir"`
}

// InfrastructureConfig locates the assistant configuration directory in the repository.
type InfrastructureConfig struct {
	// Dir is relative to the repository root
	// Default: ".claude"
	Dir string `yaml:"dir"`
}

// AppConfig configures source size and test counting.
type AppConfig struct {
	// Roots are directories (relative to the repository root) to scan
	// Default: ["."]
	Roots []string `yaml:"roots"`

	// Exclude patterns in ShouldExcludePath syntax
	Exclude []string `yaml:"exclude"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		DocumentPath: "dashboard/metrics.json",
		Period:       PeriodConfig{Start: "2025-01-01"},
		Publish:      PublishConfig{Enabled: true, Remote: "origin"},
		PR: PRConfig{
			Source:            "gh",
			Limit:             1000,
			APIURL:            "https://api.github.com",
			RequestsPerSecond: 2,
			Timeout:           60 * time.Second,
		},
		Assistant:      AssistantConfig{SessionDir: "~/.claude/projects"},
		Infrastructure: InfrastructureConfig{Dir: ".claude"},
		App: AppConfig{
			Roots: []string{"."},
			Exclude: []string{
				".git/",
				"node_modules/",
				"vendor/",
				"dist/",
				"build/",
				".venv/",
				"__pycache__/",
				"testdata/",
			},
		},
		Log: DefaultLoggerConfig(),
	}
}

// Load reads path (when it exists) over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// defaults only
		default:
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FindFile returns the config path to use: explicit if set, else
// .pulse.yaml in dir.
func FindFile(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dir, DefaultFileName)
}

// applyEnv overrides fields from environment variables.
//
// Environment variables:
//   - PULSE_DOCUMENT_PATH: document path relative to the repository
//   - PULSE_STRICT: abort on probe failure (default: false)
//   - PULSE_PUBLISH: commit and push the document (default: true)
//   - PULSE_PR_SOURCE: gh, api or none (default: gh)
//   - PULSE_PR_LIMIT: maximum merged pull requests to fetch (default: 1000)
//   - PULSE_SESSION_DIR: assistant session log directory
//   - PULSE_LOG_LEVEL, PULSE_LOG_FORMAT, PULSE_LOG_OUTPUT: logger settings
func (c *Config) applyEnv() error {
	envString("PULSE_DOCUMENT_PATH", &c.DocumentPath)
	envString("PULSE_PR_SOURCE", &c.PR.Source)
	envString("PULSE_SESSION_DIR", &c.Assistant.SessionDir)
	if err := envParse("PULSE_STRICT", &c.Strict, strconv.ParseBool); err != nil {
		return err
	}
	if err := envParse("PULSE_PUBLISH", &c.Publish.Enabled, strconv.ParseBool); err != nil {
		return err
	}
	if err := envParse("PULSE_PR_LIMIT", &c.PR.Limit, strconv.Atoi); err != nil {
		return err
	}
	c.Log.applyEnv()
	return nil
}

// envString copies key into dest when it is set and non-empty.
func envString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// envParse is envString for values that need parsing. Unset or empty keys
// leave dest alone.
func envParse[T any](key string, dest *T, parse func(string) (T, error)) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.DocumentPath == "" {
		return fmt.Errorf("document_path is required")
	}
	if _, err := time.Parse("2006-01-02", c.Period.Start); err != nil {
		return fmt.Errorf("period.start must be YYYY-MM-DD (got %q)", c.Period.Start)
	}

	switch c.PR.Source {
	case "gh", "api", "none":
	default:
		return fmt.Errorf("pr.source must be 'gh', 'api' or 'none' (got %q)", c.PR.Source)
	}
	if c.PR.Limit < 1 || c.PR.Limit > 10000 {
		return fmt.Errorf("pr.limit must be between 1 and 10000 (got %d)", c.PR.Limit)
	}
	if c.PR.RequestsPerSecond <= 0 {
		return fmt.Errorf("pr.requests_per_second must be positive (got %v)", c.PR.RequestsPerSecond)
	}
	if c.PR.Timeout <= 0 {
		return fmt.Errorf("pr.timeout must be positive (got %v)", c.PR.Timeout)
	}
	if c.Publish.Enabled && c.Publish.Remote == "" {
		return fmt.Errorf("publish.remote is required when publishing is enabled")
	}
	if len(c.App.Roots) == 0 {
		return fmt.Errorf("app.roots must list at least one directory")
	}

	return c.Log.Validate()
}

// StartDate returns Period.Start parsed. Validate guarantees it parses.
func (c Config) StartDate() time.Time {
	t, _ := time.Parse("2006-01-02", c.Period.Start)
	return t
}
