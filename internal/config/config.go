package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	MissionRoot string   `toml:"mission_root"`
	DBPath      string   `toml:"db_path"`
	KnownFiles  []string `toml:"known_files"`
	Ver65Names  bool     `toml:"ver65_names"`
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MissionRoot: filepath.Join(home, "seagliders"),
		DBPath:      filepath.Join(home, ".config", "commlog", "commlog.db"),
	}

	cfgPath := filepath.Join(home, ".config", "commlog", "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// expand ~ in paths
	cfg.MissionRoot = expandHome(cfg.MissionRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
