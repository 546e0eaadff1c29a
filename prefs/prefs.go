// Package prefs persists the small set of user choices that should survive
// restarts: the selected braille table, language and whether audible feedback
// is on. Stored as YAML in the per-user config directory.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Prefs struct {
	BrailleTable    string `yaml:"braille_table"`
	Language        string `yaml:"language"`
	FeedbackEnabled bool   `yaml:"feedback_enabled"`
	// Device is the capture device name chosen in the picker; empty means
	// system default.
	Device string `yaml:"device,omitempty"`
}

func defaults() Prefs {
	return Prefs{
		BrailleTable:    "en-ueb-g2.ctb",
		Language:        "en",
		FeedbackEnabled: true,
	}
}

// Path returns the preferences file location. SIXDOT_PREFS_PATH overrides the
// platform default.
func Path() (string, error) {
	if p := os.Getenv("SIXDOT_PREFS_PATH"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sixdot", "prefs.yaml"), nil
}

// Load reads the saved preferences, returning defaults if the file does not
// exist yet.
func Load() (Prefs, error) {
	path, err := Path()
	if err != nil {
		return defaults(), err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaults(), nil
	}
	if err != nil {
		return defaults(), fmt.Errorf("reading prefs: %w", err)
	}

	p := defaults()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return defaults(), fmt.Errorf("parsing prefs: %w", err)
	}
	return p, nil
}

// Save writes the preferences, creating the config directory if needed.
func (p Prefs) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating prefs dir: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing prefs: %w", err)
	}
	return nil
}
