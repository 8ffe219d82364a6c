// Package prefs persists dashboard UI preferences between runs: the color
// theme and the last selected period. Preferences live in
// ~/.config/metricdeck/prefs.toml and never hold credentials.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/config"
)

// Prefs holds the TUI preferences.
type Prefs struct {
	Theme  string     `toml:"theme"`
	Period api.Period `toml:"period"`
}

const (
	defaultPrefsPath = "~/.config/metricdeck/prefs.toml"
	defaultTheme     = "Nightfox"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

func defaults() Prefs {
	return Prefs{Theme: defaultTheme, Period: api.Consolidated}
}

// Load reads preferences from path. A missing or unreadable file yields the
// defaults; preferences are never worth failing startup over.
func Load(path string) (Prefs, error) {
	p := defaults()
	resolved, err := resolvePath(path)
	if err != nil {
		return p, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return p, nil
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return defaults(), nil
	}

	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	if strings.TrimSpace(string(p.Period)) == "" {
		p.Period = api.Consolidated
	}
	return p, nil
}

// Save writes preferences to path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	return config.ExpandPath(path)
}
