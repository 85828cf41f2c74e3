package main

import (
	"testing"

	"github.com/entrhq/webpreview/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, cfg *config.Config)
		wantErr bool
	}{
		{
			name: "unset flags keep config",
			args: nil,
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.DefaultConfig(), cfg)
			},
		},
		{
			name: "overrides",
			args: []string{"--headless", "-b", "firefox", "--screenshot-dir", "/tmp/s", "--install"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.True(t, cfg.Browser.Headless)
				assert.Equal(t, "firefox", cfg.Browser.Engine)
				assert.Equal(t, "/tmp/s", cfg.Screenshots.Dir)
				assert.True(t, cfg.Browser.Install)
			},
		},
		{
			name: "explicit false headless",
			args: []string{"--headless=false"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.False(t, cfg.Browser.Headless)
			},
		},
		{
			name: "port keeps host",
			args: []string{"--port", "9100"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "127.0.0.1:9100", cfg.Server.Addr)
			},
		},
		{
			name:    "bad port",
			args:    []string{"--port", "0"},
			wantErr: true,
		},
		{
			name: "no server",
			args: []string{"--no-server"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.False(t, cfg.Server.Enabled)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := parseFlags(tt.args).apply(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
