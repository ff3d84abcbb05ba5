package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/metalagman/tclink/internal/config"
	"github.com/metalagman/tclink/internal/db"
)

// loadEnv loads config for the current directory.
func loadEnv() (string, config.Config, error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return "", config.Config{}, err
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return "", config.Config{}, err
	}
	return repoRoot, cfg, nil
}

func openDB(cfg config.Config) (*sql.DB, func(), error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, func() {}, fmt.Errorf("create state dir: %w", err)
	}
	storeDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, func() {}, err
	}
	return storeDB, func() { _ = storeDB.Close() }, nil
}
