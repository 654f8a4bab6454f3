package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/wachat/internal/config"
)

func TestDir(t *testing.T) {
	t.Setenv(BaseDirEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wachat", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathsFollowBaseDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv(BaseDirEnv, base)

	if got := ConfigPath(); got != filepath.Join(base, "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
	if got := LockPath("test"); !strings.HasSuffix(got, filepath.Join("profiles", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q", got)
	}
	if got := LogPath("test"); !strings.HasSuffix(got, filepath.Join("profiles", "test", "logs", "wachat.log")) {
		t.Errorf("LogPath(test) = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
	}{
		{"flag wins", "work", &config.Config{DefaultProfile: "home"}, "work"},
		{"config default", "", &config.Config{DefaultProfile: "home"}, "home"},
		{"empty config", "", &config.Config{}, DefaultName},
		{"nil config", "", nil, DefaultName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.flag, tt.cfg); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
