package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "chromium", cfg.Browser.Engine)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, ViewportConfig{Width: 1280, Height: 720}, cfg.Browser.Viewport)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "png", cfg.Screenshots.Format)
	assert.Equal(t, "127.0.0.1:8300", cfg.Server.Addr)
	assert.False(t, cfg.Publish.Enabled)
}

func TestLoad(t *testing.T) {
	t.Run("reads yaml over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
browser:
  engine: firefox
  headless: true
  timeout: 10s
  viewport:
    width: 800
    height: 600
screenshots:
  dir: /tmp/shots
  format: jpeg
server:
  ignore: ["dist"]
  roots: ["/srv/app"]
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "firefox", cfg.Browser.Engine)
		assert.True(t, cfg.Browser.Headless)
		assert.Equal(t, 10*time.Second, cfg.Browser.Timeout)
		assert.Equal(t, 800, cfg.Browser.Viewport.Width)
		assert.Equal(t, "/tmp/shots", cfg.Screenshots.Dir)
		assert.Equal(t, "jpeg", cfg.Screenshots.Format)
		assert.Equal(t, 90, cfg.Screenshots.Quality, "unset fields keep their defaults")
		assert.Equal(t, []string{"dist"}, cfg.Server.Ignore)
		assert.Equal(t, []string{"/srv/app"}, cfg.Server.Roots)
		assert.Equal(t, "127.0.0.1:8300", cfg.Server.Addr)
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("invalid yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("browser: [unclosed"), 0o644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("missing default file uses defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Browser, cfg.Browser)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("browser:\n  headless: false\n"), 0o644))
		t.Setenv(EnvHeadless, "true")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.Browser.Headless)
	})
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		check   func(t *testing.T, cfg *Config)
		wantErr string
	}{
		{
			name:  "headless",
			vars:  map[string]string{EnvHeadless: "1"},
			check: func(t *testing.T, cfg *Config) { assert.True(t, cfg.Browser.Headless) },
		},
		{
			name:    "bad headless",
			vars:    map[string]string{EnvHeadless: "sometimes"},
			wantErr: EnvHeadless,
		},
		{
			name:  "screenshot dir",
			vars:  map[string]string{EnvScreenshotDir: "/var/shots"},
			check: func(t *testing.T, cfg *Config) { assert.Equal(t, "/var/shots", cfg.Screenshots.Dir) },
		},
		{
			name:  "port keeps host",
			vars:  map[string]string{EnvPort: "9000"},
			check: func(t *testing.T, cfg *Config) { assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr) },
		},
		{
			name:    "bad port",
			vars:    map[string]string{EnvPort: "70000"},
			wantErr: EnvPort,
		},
		{
			name: "publish",
			vars: map[string]string{EnvPublish: "true", EnvPublishDomain: "previews.example.test"},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Publish.Enabled)
				assert.Equal(t, "previews.example.test", cfg.Publish.Domain)
			},
		},
		{
			name:  "publish needs literal true",
			vars:  map[string]string{EnvPublish: "yes"},
			check: func(t *testing.T, cfg *Config) { assert.False(t, cfg.Publish.Enabled) },
		},
		{
			name:  "empty values ignored",
			vars:  map[string]string{EnvScreenshotDir: "", EnvPort: ""},
			check: func(t *testing.T, cfg *Config) { assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.ApplyEnv(env(tt.vars))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "engine case folded", mutate: func(c *Config) { c.Browser.Engine = "WebKit" }},
		{name: "empty engine defaults", mutate: func(c *Config) { c.Browser.Engine = "" }},
		{name: "unknown engine", mutate: func(c *Config) { c.Browser.Engine = "netscape" }, wantErr: "invalid browser engine"},
		{name: "zero viewport", mutate: func(c *Config) { c.Browser.Viewport.Height = 0 }, wantErr: "viewport"},
		{name: "negative timeout", mutate: func(c *Config) { c.Browser.Timeout = -time.Second }, wantErr: "timeout"},
		{name: "no screenshot dir", mutate: func(c *Config) { c.Screenshots.Dir = "" }, wantErr: "screenshot directory"},
		{name: "bad format", mutate: func(c *Config) { c.Screenshots.Format = "gif" }, wantErr: "invalid screenshot format"},
		{name: "bad quality", mutate: func(c *Config) { c.Screenshots.Quality = 101 }, wantErr: "quality"},
		{name: "bad addr", mutate: func(c *Config) { c.Server.Addr = "8300" }, wantErr: "invalid server address"},
		{name: "bad addr ignored when disabled", mutate: func(c *Config) { c.Server.Enabled = false; c.Server.Addr = "x" }},
		{name: "publish without domain", mutate: func(c *Config) { c.Publish.Enabled = true; c.Publish.Domain = "" }, wantErr: "domain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	cfg := DefaultConfig()
	cfg.Browser.Engine = "WebKit"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "webkit", cfg.Browser.Engine)
}
