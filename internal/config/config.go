// Package config loads the releasekit policy file and resolves queue locations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ankittk/releasekit/internal/version"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is where the policy file is looked up when --config is not given.
	DefaultPath = ".github/releasekit.yaml"
	// DefaultQueueDir holds the queue files, relative to the working directory.
	DefaultQueueDir = ".github/release_queue"

	LayoutPerBranch = "per-branch"
	LayoutShared    = "shared"

	sharedQueueFile = "queue.json"
)

// QueueConfig controls where and how the release queue is stored.
type QueueConfig struct {
	Dir         string `yaml:"dir"`
	Layout      string `yaml:"layout"`
	SlotMinutes int    `yaml:"slot_minutes"`
}

// Settings models the policy file.
//
//	source_branch: beta
//	default_version: beta-v0.0.1
//	queue:
//	  dir: .github/release_queue
//	  layout: per-branch
//	  slot_minutes: 15
//	history_db: .github/release_queue/history.sqlite
type Settings struct {
	version.Policy `yaml:",inline"`
	Queue          QueueConfig `yaml:"queue"`
	HistoryDB      string      `yaml:"history_db"`
}

// Defaults returns settings used when no policy file exists.
func Defaults() *Settings {
	return &Settings{
		Policy: version.Policy{DefaultVersion: version.DefaultInitialVersion},
		Queue:  QueueConfig{Dir: DefaultQueueDir, Layout: LayoutPerBranch},
	}
}

// Load reads the policy file at path over Defaults. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.DefaultVersion == "" {
		s.DefaultVersion = version.DefaultInitialVersion
	}
	if s.Queue.Layout == "" {
		s.Queue.Layout = LayoutPerBranch
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path as YAML, creating the parent directory.
func Save(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks values that Load cannot default.
func (s *Settings) Validate() error {
	switch s.Queue.Layout {
	case LayoutPerBranch, LayoutShared:
	default:
		return fmt.Errorf("queue.layout must be %q or %q, got %q", LayoutPerBranch, LayoutShared, s.Queue.Layout)
	}
	if s.Queue.SlotMinutes < 0 {
		return errors.New("queue.slot_minutes must not be negative")
	}
	return nil
}

// ResolveQueueDir returns the queue directory (override, RELEASEKIT_QUEUE_DIR, settings, or default).
func ResolveQueueDir(override string, s *Settings) string {
	if override != "" {
		return filepath.Clean(override)
	}
	if env := os.Getenv("RELEASEKIT_QUEUE_DIR"); env != "" {
		return filepath.Clean(env)
	}
	if s != nil && s.Queue.Dir != "" {
		return filepath.Clean(s.Queue.Dir)
	}
	return DefaultQueueDir
}

// QueueFile returns the queue file for branch: <dir>/<branch>.json, or <dir>/queue.json
// for the shared layout.
func QueueFile(dir, layout, branch string) string {
	if layout == LayoutShared {
		return filepath.Join(dir, sharedQueueFile)
	}
	return filepath.Join(dir, strings.ToLower(strings.TrimSpace(branch))+".json")
}

// Input returns the GitHub Actions input INPUT_<NAME>, as composite actions pass them.
func Input(name string) string {
	key := "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
	return strings.TrimSpace(os.Getenv(key))
}

// FirstNonEmpty returns the first non-empty value.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
