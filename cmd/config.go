// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds defaults that would otherwise be passed as flags every run.
type Config struct {
	Port   string `toml:"port"`
	CSV    string `toml:"csv"`
	Listen string `toml:"listen"`
}

// LoadConfig reads a TOML config file. Unknown keys are rejected so a typo
// does not silently fall back to defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown key %q in config %s", undecoded[0].String(), path)
	}

	return cfg, nil
}
