package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matheus3301/wachat/internal/config"
	"github.com/matheus3301/wachat/internal/profile"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigSetAndShow(t *testing.T) {
	t.Setenv(profile.BaseDirEnv, t.TempDir())

	if _, err := run(t, "config", "set-url", "https://chat.example.com"); err != nil {
		t.Fatalf("set-url error = %v", err)
	}
	if _, err := run(t, "config", "set-profile", "work"); err != nil {
		t.Fatalf("set-profile error = %v", err)
	}

	cfg, err := config.ReadFile(profile.ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://chat.example.com" || cfg.DefaultProfile != "work" {
		t.Errorf("saved config = %+v", cfg)
	}

	out, err := run(t, "config", "show")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "profile work") || !strings.Contains(out, `server_url = "https://chat.example.com"`) {
		t.Errorf("show output = %s", out)
	}
}

func TestConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv(profile.BaseDirEnv, t.TempDir())

	if _, err := run(t, "config", "set-url", "ftp://nope"); err == nil {
		t.Error("set-url accepted ftp url")
	}
	if _, err := run(t, "config", "set-profile", "Bad Name"); err == nil {
		t.Error("set-profile accepted invalid name")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"olá mundo inteiro", 5, "olá …"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
