// Package dirs resolves the per-user directories remixer keeps its tool
// configuration and state in. Project data never lives here; it stays in
// the project directory.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "remixer"

const lastProjectFile = "last_project"

// AppName returns the canonical application name for directory paths.
func AppName() string {
	return appName
}

// ConfigDir returns the app's configuration directory.
// - Linux: $XDG_CONFIG_HOME/remixer or ~/.config/remixer
// - macOS: ~/Library/Application Support/remixer
// - Windows: %AppData%/remixer
func ConfigDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", AppName()), nil
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName()), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", AppName()), nil
	default:
		cfg, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(cfg, AppName()), nil
	}
}

// StateDir returns the app's state directory.
// - Linux: $XDG_STATE_HOME/remixer or ~/.local/state/remixer
// - macOS: ~/Library/Application Support/remixer/state
// - Windows: %LocalAppData%/remixer/state (fallback to ConfigDir/state)
func StateDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", AppName(), "state"), nil
	case "linux":
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName()), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "state", AppName()), nil
	default:
		if la := os.Getenv("LOCALAPPDATA"); la != "" {
			return filepath.Join(la, AppName(), "state"), nil
		}
		cfg, err := ConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(cfg, "state"), nil
	}
}

// Ensure creates the directory if it doesn't exist.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll ensures the config and state dirs exist.
func EnsureAll() error {
	for _, f := range []func() (string, error){ConfigDir, StateDir} {
		p, err := f()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}

// LastProject returns the project path recorded by RememberProject, or ""
// when none was recorded.
func LastProject() string {
	s, err := StateDir()
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(filepath.Join(s, lastProjectFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// RememberProject records path as the project later commands default to.
func RememberProject(path string) error {
	s, err := StateDir()
	if err != nil {
		return err
	}
	if err := Ensure(s); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s, lastProjectFile), []byte(abs+"\n"), 0o644)
}
