// Package config loads the watch session configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no --config
// flag is given.
const DefaultFileName = ".probewatch.yaml"

// Config holds all probewatch settings.
type Config struct {
	// Root is the directory tree to watch.
	Root string `yaml:"root"`

	// LogPath is the probe log written by executed artifacts.
	LogPath string `yaml:"log_path"`

	// DebounceMS is the window within which a change event on a path the
	// engine itself just wrote is treated as self-inflicted and ignored.
	DebounceMS int `yaml:"debounce_ms"`

	// ExecutableExts are extensions of directly runnable artifacts. An
	// explicitly empty list disables direct execution; an absent key keeps
	// the default.
	ExecutableExts []string `yaml:"executable_extensions"`

	// SourceExts are extensions of higher-level sources that a toolchain
	// derives artifacts and mapping tables from. Same opt-out rule as
	// ExecutableExts.
	SourceExts []string `yaml:"source_extensions"`

	// Entry is the designated entry function invoked after evaluation.
	Entry string `yaml:"entry_function"`

	// Runner selects the execution environment: "yaegi" or "exec".
	Runner string `yaml:"runner"`

	// SessionDB is the sqlite file recording touched files for rollback.
	SessionDB string `yaml:"session_db"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Root:           ".",
		LogPath:        ".probewatch.log",
		DebounceMS:     500,
		ExecutableExts: []string{".go"},
		SourceExts:     []string{".gox"},
		Entry:          "main.Main",
		Runner:         "yaegi",
		SessionDB:      ".probewatch.db",
	}
}

// Load reads the config at path over the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores defaults for scalar fields the file set to zero
// values. The extension lists are left alone: the file is parsed over the
// defaults, so an empty list only ever means the file asked for one.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Root == "" {
		c.Root = d.Root
	}
	if c.LogPath == "" {
		c.LogPath = d.LogPath
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = d.DebounceMS
	}
	if c.Entry == "" {
		c.Entry = d.Entry
	}
	if c.Runner == "" {
		c.Runner = d.Runner
	}
	if c.SessionDB == "" {
		c.SessionDB = d.SessionDB
	}
}
