package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var defaultConfig = map[string]any{
	"state_dir": ".tclink",
	"linker": map[string]any{
		"workers":      1,
		"known_ac_ids": []string{},
	},
	"output": map[string]any{
		"format": "auto",
	},
	"retention": map[string]any{
		"keep_last": 50,
		"keep_days": 30,
	},
	"ui": map[string]any{
		"port": 8080,
	},
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize tclink in the current directory",
		Long:  "Initialize tclink by creating the .tclink directory with runs and locks, the database, and a default config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}

			path := configPath(repoRoot)
			if _, err := os.Stat(path); err == nil {
				log.Info().Str("path", path).Msg("config already exists, skipping")
			} else {
				log.Info().Str("path", path).Msg("installing default config")
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("create config dir: %w", err)
				}
				data, err := json.MarshalIndent(defaultConfig, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal default config: %w", err)
				}
				if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			cfg, err := loadConfig(repoRoot)
			if err != nil {
				return err
			}
			log.Info().Str("dir", cfg.StateDir).Msg("creating tclink directory")
			if err := os.MkdirAll(cfg.RunsDir(), 0o755); err != nil {
				return fmt.Errorf("create runs dir: %w", err)
			}
			if err := os.MkdirAll(filepath.Join(cfg.StateDir, "locks"), 0o755); err != nil {
				return fmt.Errorf("create locks dir: %w", err)
			}
			_, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			closeFn()

			fmt.Fprintln(cmd.OutOrStdout(), "tclink initialized successfully")
			return nil
		},
	}
}
