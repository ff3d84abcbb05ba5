package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/metalagman/tclink/internal/config"
	"github.com/spf13/viper"
)

func loadConfig(repoRoot string) (config.Config, error) {
	cfg, err := config.Load(viper.GetViper(), repoRoot)
	if errors.Is(err, config.ErrInvalidConfig) {
		return config.Config{}, fmt.Errorf("%w (fix the file or pass another one with --config)", err)
	}
	return cfg, err
}

func configPath(repoRoot string) string {
	path := viper.GetString("config")
	if path == "" {
		path = config.DefaultPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return path
}
