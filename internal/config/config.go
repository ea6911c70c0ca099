package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIPath  = "/api/v1"
	DefaultPageSize = 50
	DefaultTimeout  = 30 * time.Second
)

// Query kinds accepted in saved queries.
var queryKinds = map[string]bool{
	"REPORT":             true,
	"CUSTOM":             true,
	"TOP_LEVEL_PLANNING": true,
}

// Config models tuleap.yml.
type Config struct {
	Repository Repository       `yaml:"repository"`
	Queries    map[string]Query `yaml:"queries"`
}

type Repository struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	APIPath  string `yaml:"api_path"`
	PageSize int    `yaml:"page_size"`
	Timeout  string `yaml:"timeout"`
	// TimeZone names the location dates are rendered in; empty means local.
	TimeZone string `yaml:"time_zone"`
}

// Query is a saved query. Only the ids its kind needs are read.
type Query struct {
	Title     string              `yaml:"title"`
	Kind      string              `yaml:"kind"`
	TrackerID int                 `yaml:"tracker_id"`
	ReportID  int                 `yaml:"report_id"`
	ProjectID int                 `yaml:"project_id"`
	Criteria  map[string][]string `yaml:"criteria"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with tlp config init --url <repository>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config from raw YAML bytes, fills defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) applyDefaults() {
	c.Repository.URL = strings.TrimRight(c.Repository.URL, "/")
	if c.Repository.APIPath == "" {
		c.Repository.APIPath = DefaultAPIPath
	}
	if c.Repository.PageSize == 0 {
		c.Repository.PageSize = DefaultPageSize
	}
	if c.Repository.Timeout == "" {
		c.Repository.Timeout = DefaultTimeout.String()
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Repository.URL == "" {
		return fmt.Errorf("config.repository.url is required")
	}
	u, err := url.Parse(c.Repository.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.repository.url must be an absolute http(s) url, got %q", c.Repository.URL)
	}
	if !strings.HasPrefix(c.Repository.APIPath, "/") {
		return fmt.Errorf("config.repository.api_path must start with /")
	}
	if c.Repository.PageSize < 0 {
		return fmt.Errorf("config.repository.page_size must be positive")
	}
	if _, err := time.ParseDuration(c.Repository.Timeout); err != nil {
		return fmt.Errorf("config.repository.timeout: %w", err)
	}
	if c.Repository.TimeZone != "" {
		if _, err := time.LoadLocation(c.Repository.TimeZone); err != nil {
			return fmt.Errorf("config.repository.time_zone: %w", err)
		}
	}
	for name, q := range c.Queries {
		if name == "" {
			return fmt.Errorf("config.queries contains an empty name")
		}
		if !queryKinds[q.Kind] {
			return fmt.Errorf("query %s has unknown kind %q", name, q.Kind)
		}
		switch q.Kind {
		case "REPORT":
			if q.ReportID <= 0 {
				return fmt.Errorf("query %s requires report_id", name)
			}
		case "CUSTOM":
			if q.TrackerID <= 0 {
				return fmt.Errorf("query %s requires tracker_id", name)
			}
		case "TOP_LEVEL_PLANNING":
			if q.ProjectID <= 0 {
				return fmt.Errorf("query %s requires project_id", name)
			}
		}
		if q.Kind != "CUSTOM" && len(q.Criteria) > 0 {
			return fmt.Errorf("query %s: criteria only apply to CUSTOM queries", name)
		}
	}
	return nil
}

// APIURL is the root every REST path is resolved against.
func (c *Config) APIURL() string {
	return c.Repository.URL + c.Repository.APIPath
}

// TimeoutDuration returns the parsed request timeout.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Repository.Timeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// Location returns the configured time zone, local time when unset.
func (c *Config) Location() *time.Location {
	if c.Repository.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Repository.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tuleap.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(repositoryURL, username string) string {
	return fmt.Sprintf(defaultTemplate, strings.TrimRight(repositoryURL, "/"), username)
}

// Default returns the default Config struct for a repository.
func Default(repositoryURL, username string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(repositoryURL, username)), &cfg)
	cfg.applyDefaults()
	return &cfg
}

const defaultTemplate = `repository:
  url: %s
  username: %s
  api_path: /api/v1
  page_size: 50
  timeout: 30s

# Saved queries, run with tlp query run <name>.
# queries:
#   open-bugs:
#     title: Open bugs
#     kind: REPORT
#     report_id: 501
#   my-bugs:
#     kind: CUSTOM
#     tracker_id: 1001
#     criteria:
#       assigned_to: [jdoe]
#   roadmap:
#     kind: TOP_LEVEL_PLANNING
#     project_id: 101
`
