package profile

import (
	"os"
	"path/filepath"
)

// BaseDirEnv overrides the base directory, mostly for tests.
const BaseDirEnv = "WACHAT_HOME"

// BaseDir returns ~/.wachat, or $WACHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv(BaseDirEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wachat")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wachat.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
