package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

const configName = "classbuilder.toml"

type projectConfig struct {
	Output   outputConfig   `toml:"output"`
	Class    classConfig    `toml:"class"`
	Registry registryConfig `toml:"registry"`
	Build    buildConfig    `toml:"build"`
}

type outputConfig struct {
	Dir    string `toml:"dir"`
	Render bool   `toml:"render"`
}

type classConfig struct {
	Major     uint16 `toml:"major"`
	Minor     uint16 `toml:"minor"`
	Debug     bool   `toml:"debug"`
	MaxLocals int    `toml:"max_locals"`
}

type registryConfig struct {
	Snapshot string `toml:"snapshot"`
}

type buildConfig struct {
	Recipes  []string `toml:"recipes"`
	Jobs     int      `toml:"jobs"`
	Cache    bool     `toml:"cache"`
	CacheDir string   `toml:"cache_dir"`
}

// manifest is a loaded classbuilder.toml; relative paths in it are
// resolved against Root.
type manifest struct {
	Path   string
	Root   string
	Config projectConfig
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return projectConfig{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if cfg.Class.Major != 0 && cfg.Class.Major < 45 {
		return projectConfig{}, fmt.Errorf("%s: [class].major %d is not a class-file version", path, cfg.Class.Major)
	}
	if cfg.Class.MaxLocals < 0 {
		return projectConfig{}, fmt.Errorf("%s: [class].max_locals must not be negative", path)
	}
	return cfg, nil
}

// loadManifest honours --config, else searches upwards from the working
// directory. A missing file is not an error.
func loadManifest(cmd *cobra.Command) (*manifest, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		found, ok, err := findConfig(".")
		if err != nil || !ok {
			return &manifest{Root: "."}, err
		}
		path = found
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return &manifest{Path: path, Root: filepath.Dir(path), Config: cfg}, nil
}

// resolve makes a manifest-relative path usable from the working directory.
func (m *manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Path == "" {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}
