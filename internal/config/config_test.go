// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setRequired fills the fields that have no usable defaults.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DRIFTLINE_API_KEY", "key-123")
	t.Setenv("DRIFTLINE_AUTH_USER_ID", "ada")
	t.Setenv("DRIFTLINE_AUTH_TOKEN", "token-abc")
}

func TestLoad_DefaultsWithEnvRequired(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("api timeout = %v", cfg.API.Timeout)
	}
	if cfg.API.Key != "key-123" {
		t.Errorf("api key = %q", cfg.API.Key)
	}
	if cfg.Auth.UserID != "ada" {
		t.Errorf("auth user = %q", cfg.Auth.UserID)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setRequired(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "driftline.yaml")
	yaml := strings.Join([]string{
		"logging:",
		"  level: debug",
		"store:",
		"  path: /tmp/from-file",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("DRIFTLINE_STORE_PATH", "/tmp/from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("file layer not applied, level = %q", cfg.Logging.Level)
	}
	if cfg.Store.Path != "/tmp/from-env" {
		t.Errorf("env layer must beat file, path = %q", cfg.Store.Path)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "bad log level",
			env:  map[string]string{"DRIFTLINE_LOGGING_LEVEL": "verbose"},
			want: "logging.level",
		},
		{
			name: "bad api url",
			env:  map[string]string{"DRIFTLINE_API_BASE_URL": "not a url"},
			want: "api.baseurl",
		},
		{
			name: "missing credentials",
			env:  map[string]string{"DRIFTLINE_AUTH_TOKEN": "", "DRIFTLINE_AUTH_SECRET": ""},
			want: "auth.token or auth.secret",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for key, val := range tc.env {
				t.Setenv(key, val)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"DRIFTLINE_LOGGING_LEVEL":   "logging.level",
		"DRIFTLINE_API_BASE_URL":    "api.base_url",
		"DRIFTLINE_STORE_IN_MEMORY": "store.in_memory",
		"DRIFTLINE_TRANSPORT_URL":   "transport.url",
	}
	for in, want := range cases {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
