package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. It is loaded from YAML, then
// overridden by environment variables and finally by command-line flags.
type Config struct {
	Browser     BrowserConfig    `yaml:"browser" json:"browser"`
	Screenshots ScreenshotConfig `yaml:"screenshots" json:"screenshots"`
	Server      ServerConfig     `yaml:"server" json:"server"`
	Publish     PublishConfig    `yaml:"publish" json:"publish"`
	Logging     LoggingConfig    `yaml:"logging" json:"logging"`
}

// BrowserConfig holds defaults for new previews.
type BrowserConfig struct {
	// Engine is chromium, firefox or webkit
	Engine   string         `yaml:"engine" json:"engine"`
	Headless bool           `yaml:"headless" json:"headless"`
	Viewport ViewportConfig `yaml:"viewport" json:"viewport"`
	// Timeout bounds navigation and waits
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Install downloads the Playwright driver and browsers on first launch
	Install bool `yaml:"install" json:"install"`
}

// ViewportConfig is a page size in CSS pixels.
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// ScreenshotConfig controls where and how screenshots are written.
type ScreenshotConfig struct {
	Dir     string `yaml:"dir" json:"dir"`
	Format  string `yaml:"format" json:"format"`
	Quality int    `yaml:"quality" json:"quality"`
}

// ServerConfig controls the live-reload push channel.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	// Ignore lists glob patterns for files that never trigger a reload
	Ignore []string `yaml:"ignore" json:"ignore"`
	// Roots limits the project directories clients may register. Empty
	// allows any directory.
	Roots []string `yaml:"roots" json:"roots"`
}

// PublishConfig controls public preview addresses.
type PublishConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Domain  string `yaml:"domain" json:"domain"`
}

// LoggingConfig controls the component log.
type LoggingConfig struct {
	// Dir overrides ~/.webpreview/logs
	Dir string `yaml:"dir" json:"dir"`
}

// Environment variables read by ApplyEnv.
const (
	EnvHeadless      = "WEBPREVIEW_HEADLESS"
	EnvScreenshotDir = "WEBPREVIEW_SCREENSHOT_DIR"
	EnvPort          = "WEBPREVIEW_PORT"
	EnvPublish       = "PROXYMASTER_ENABLED"
	EnvPublishDomain = "PROXYMASTER_DOMAIN"
)

var (
	validEngines = map[string]bool{"chromium": true, "firefox": true, "webkit": true}
	validFormats = map[string]bool{"png": true, "jpeg": true}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:   "chromium",
			Headless: false,
			Viewport: ViewportConfig{Width: 1280, Height: 720},
			Timeout:  30 * time.Second,
		},
		Screenshots: ScreenshotConfig{
			Dir:     "screenshots",
			Format:  "png",
			Quality: 90,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8300",
			Ignore:  []string{".*", "node_modules"},
		},
		Publish: PublishConfig{
			Domain: "preview.komposia.com",
		},
	}
}

// DefaultPath returns ~/.webpreview/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".webpreview", "config.yaml"), nil
}

// Load reads path over the defaults. An empty path tries DefaultPath and
// falls back to the defaults when that file does not exist. Environment
// overrides are applied before returning.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHeadless); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHeadless, v, err)
		}
		c.Browser.Headless = b
	}

	if v, ok := lookup(EnvScreenshotDir); ok && v != "" {
		c.Screenshots.Dir = v
	}

	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s %q: must be a port number", EnvPort, v)
		}
		host := "127.0.0.1"
		if h, _, err := net.SplitHostPort(c.Server.Addr); err == nil && h != "" {
			host = h
		}
		c.Server.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}

	// Matches the proxy's own convention: only the literal "true" enables it.
	if v, ok := lookup(EnvPublish); ok {
		c.Publish.Enabled = v == "true"
	}
	if v, ok := lookup(EnvPublishDomain); ok && v != "" {
		c.Publish.Domain = v
	}
	return nil
}

// Validate checks the configuration and fills empty optional fields.
func (c *Config) Validate() error {
	c.Browser.Engine = strings.ToLower(c.Browser.Engine)
	if c.Browser.Engine == "" {
		c.Browser.Engine = "chromium"
	}
	if !validEngines[c.Browser.Engine] {
		return fmt.Errorf("invalid browser engine: %s (must be 'chromium', 'firefox', or 'webkit')", c.Browser.Engine)
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Browser.Viewport.Width, c.Browser.Viewport.Height)
	}
	if c.Browser.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	if c.Screenshots.Dir == "" {
		return fmt.Errorf("screenshot directory is required")
	}
	if c.Screenshots.Format == "" {
		c.Screenshots.Format = "png"
	}
	if !validFormats[c.Screenshots.Format] {
		return fmt.Errorf("invalid screenshot format: %s (must be 'png' or 'jpeg')", c.Screenshots.Format)
	}
	if c.Screenshots.Quality < 0 || c.Screenshots.Quality > 100 {
		return fmt.Errorf("screenshot quality %d out of range 0-100", c.Screenshots.Quality)
	}

	if c.Server.Enabled {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			return fmt.Errorf("invalid server address %q: %w", c.Server.Addr, err)
		}
	}

	if c.Publish.Enabled && c.Publish.Domain == "" {
		return fmt.Errorf("publish requires a domain")
	}
	return nil
}
