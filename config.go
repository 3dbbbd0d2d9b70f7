// configuration: defaults, file discovery, paths, and layout constants.
//
// a Config is built once in main and handed to the supervisor, the
// dashboard model, and the diagnostic runner. nothing caches it
// globally.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
)

// configCandidates are tried in order under the repo root.
var configCandidates = []string{
	"wtui.json",
	".wtui.json",
	filepath.Join("config", "wtui.json"),
}

type Config struct {
	UI        UIConfig        `mapstructure:"ui"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Process   ProcessConfig   `mapstructure:"process"`
	Syncpack  SyncpackConfig  `mapstructure:"syncpack"`
	Behavior  BehaviorConfig  `mapstructure:"behavior"`

	// set by loadConfig, not read from the file
	root     string
	source   string
	warnings []string
}

type UIConfig struct {
	Theme                string `mapstructure:"theme"`
	MinWidthForLandscape int    `mapstructure:"minWidthForLandscape"`
	SidebarWidth         int    `mapstructure:"sidebarWidth"` // percent of terminal width
	ShowTimestamps       bool   `mapstructure:"showTimestamps"`
	RefreshIntervalMs    int    `mapstructure:"refreshIntervalMs"`
}

type WorkspaceConfig struct {
	ExcludeWorkspaces    []string `mapstructure:"excludeWorkspaces"`
	AutoDetectWorkspaces bool     `mapstructure:"autoDetectWorkspaces"`
	TreeViewEnabled      bool     `mapstructure:"treeViewEnabled"`
	Workspaces           []string `mapstructure:"workspaces"` // used when auto-detect is off
}

type ProcessConfig struct {
	Command        []string `mapstructure:"command"`
	Script         string   `mapstructure:"script"`
	BufferCapacity int      `mapstructure:"bufferCapacity"` // chunks, not lines
	StopTimeoutMs  int      `mapstructure:"stopTimeoutMs"`
}

type SyncpackConfig struct {
	Command         []string `mapstructure:"command"`
	DependencyTypes []string `mapstructure:"dependencyTypes"`
	AutoLintOnStart bool     `mapstructure:"autoLintOnStart"`
}

type BehaviorConfig struct {
	LogLevel              string `mapstructure:"logLevel"` // verbose, normal, quiet
	RememberLastWorkspace bool   `mapstructure:"rememberLastWorkspace"`
}

func defaultConfig() Config {
	return Config{
		UI: UIConfig{
			Theme:                "dark",
			MinWidthForLandscape: 80,
			SidebarWidth:         25,
			RefreshIntervalMs:    100,
		},
		Workspace: WorkspaceConfig{
			ExcludeWorkspaces:    []string{},
			AutoDetectWorkspaces: true,
		},
		Process: ProcessConfig{
			Command:        []string{"bun", "run"},
			Script:         "dev",
			BufferCapacity: defaultBufferCapacity,
			StopTimeoutMs:  3000,
		},
		Syncpack: SyncpackConfig{
			Command:         []string{"bunx", "syncpack"},
			DependencyTypes: []string{"prod", "dev"},
		},
		Behavior: BehaviorConfig{
			LogLevel: "normal",
		},
	}
}

// loadConfig builds the config for the repo at root. explicit, when
// set, must exist and parse. otherwise the first candidate file found
// is used; a candidate that fails to parse is skipped with a warning,
// like a missing one.
func loadConfig(root, explicit string) (*Config, error) {
	cfg := defaultConfig()
	cfg.root = root

	paths := []string{explicit}
	if explicit == "" {
		paths = paths[:0]
		for _, name := range configCandidates {
			paths = append(paths, filepath.Join(root, name))
		}
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) && explicit == "" {
			continue
		}
		if err == nil {
			err = decodeConfig(data, &cfg)
		}
		if err != nil {
			if explicit != "" {
				return nil, fmt.Errorf("loading config %s: %w", path, err)
			}
			cfg.warnings = append(cfg.warnings, fmt.Sprintf("failed to load config from %s: %v", path, err))
			continue
		}
		cfg.source = path
		break
	}

	cfg.normalize()
	return &cfg, nil
}

// decodeConfig overlays a JSON-with-comments document onto cfg.
func decodeConfig(data []byte, cfg *Config) error {
	v := viper.New()
	v.SetConfigType("json")
	setConfigDefaults(v, *cfg)
	if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(data))); err != nil {
		return err
	}
	out := *cfg
	if err := v.Unmarshal(&out); err != nil {
		return err
	}
	out.root, out.source, out.warnings = cfg.root, cfg.source, cfg.warnings
	*cfg = out
	return nil
}

func setConfigDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.minWidthForLandscape", cfg.UI.MinWidthForLandscape)
	v.SetDefault("ui.sidebarWidth", cfg.UI.SidebarWidth)
	v.SetDefault("ui.showTimestamps", cfg.UI.ShowTimestamps)
	v.SetDefault("ui.refreshIntervalMs", cfg.UI.RefreshIntervalMs)
	v.SetDefault("workspace.excludeWorkspaces", cfg.Workspace.ExcludeWorkspaces)
	v.SetDefault("workspace.autoDetectWorkspaces", cfg.Workspace.AutoDetectWorkspaces)
	v.SetDefault("workspace.treeViewEnabled", cfg.Workspace.TreeViewEnabled)
	v.SetDefault("workspace.workspaces", cfg.Workspace.Workspaces)
	v.SetDefault("process.command", cfg.Process.Command)
	v.SetDefault("process.script", cfg.Process.Script)
	v.SetDefault("process.bufferCapacity", cfg.Process.BufferCapacity)
	v.SetDefault("process.stopTimeoutMs", cfg.Process.StopTimeoutMs)
	v.SetDefault("syncpack.command", cfg.Syncpack.Command)
	v.SetDefault("syncpack.dependencyTypes", cfg.Syncpack.DependencyTypes)
	v.SetDefault("syncpack.autoLintOnStart", cfg.Syncpack.AutoLintOnStart)
	v.SetDefault("behavior.logLevel", cfg.Behavior.LogLevel)
	v.SetDefault("behavior.rememberLastWorkspace", cfg.Behavior.RememberLastWorkspace)
}

// normalize clamps values a hand-edited file can get wrong.
func (c *Config) normalize() {
	c.UI.SidebarWidth = min(max(c.UI.SidebarWidth, 10), 90)
	c.UI.MinWidthForLandscape = max(c.UI.MinWidthForLandscape, 0)
	c.UI.RefreshIntervalMs = max(c.UI.RefreshIntervalMs, 10)
	if c.UI.Theme != "light" {
		c.UI.Theme = "dark"
	}
	c.Process.BufferCapacity = max(c.Process.BufferCapacity, 1)
	c.Process.StopTimeoutMs = max(c.Process.StopTimeoutMs, 0)
	if c.Process.Script == "" {
		c.Process.Script = "dev"
	}
	switch c.Behavior.LogLevel {
	case "verbose", "normal", "quiet":
	default:
		c.warnings = append(c.warnings, fmt.Sprintf("unknown logLevel %q, using normal", c.Behavior.LogLevel))
		c.Behavior.LogLevel = "normal"
	}
}

// workerArgv is the command run in each workspace: command + script.
func (c *Config) workerArgv() []string {
	argv := append([]string(nil), c.Process.Command...)
	return append(argv, c.Process.Script)
}

func (c *Config) refreshInterval() time.Duration {
	return time.Duration(c.UI.RefreshIntervalMs) * time.Millisecond
}

func (c *Config) stopTimeout() time.Duration {
	return time.Duration(c.Process.StopTimeoutMs) * time.Millisecond
}

// dependencyTypesArg renders the filter list for syncpack's
// --dependency-types flag, e.g. "prod,dev".
func (c *Config) dependencyTypesArg() string {
	return strings.Join(c.Syncpack.DependencyTypes, ",")
}

// -- paths --

// stateDir returns wtui's state directory. respects XDG_STATE_HOME.
func stateDir() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, _ := os.UserHomeDir()
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "wtui")
}

// dbPath returns the path to the sqlite state store.
func dbPath() string {
	return filepath.Join(stateDir(), "state.db")
}

// defaultLogPath returns where operational logs go when --log-output
// isn't given. the terminal belongs to the TUI.
func defaultLogPath() string {
	return filepath.Join(stateDir(), "wtui.log")
}

// -- layout constants --

const (
	sidebarMinWidth = 16 // narrowest side-by-side sidebar
	stackedSidebar  = 30 // percent of height for the sidebar when stacked
	paneChrome      = 2  // border rows/cols per pane
)
