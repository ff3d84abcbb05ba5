package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metalagman/tclink/internal/catalog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func acCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ac",
		Short: "Manage known acceptance criteria",
		Long:  "Manage the acceptance criteria catalog. The first criterion is the default assigned to unlinked test cases.",
	}
	cmd.AddCommand(acAddCmd())
	cmd.AddCommand(acListCmd())
	cmd.AddCommand(acRemoveCmd())
	cmd.AddCommand(acImportCmd())
	return cmd
}

func withCatalog(fn func(store *catalog.Store) error) error {
	_, cfg, err := loadEnv()
	if err != nil {
		return err
	}
	storeDB, closeFn, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(catalog.NewStore(storeDB))
}

func acAddCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Append an acceptance criterion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("text is required")
			}
			return withCatalog(func(store *catalog.Store) error {
				c, err := store.Add(cmd.Context(), strings.TrimSpace(id), text)
				if err != nil {
					return err
				}
				log.Info().Str("id", c.ID).Int("position", c.Position).Msg("acceptance criterion added")
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "criterion id (default AC-<position>)")
	return cmd
}

func acListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List acceptance criteria in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(store *catalog.Store) error {
				items, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(items) == 0 {
					log.Info().Msg("no acceptance criteria")
					return nil
				}
				for _, item := range items {
					_, _ = io.WriteString(cmd.OutOrStdout(), fmt.Sprintf("%s\t%s\n", item.ID, item.Text))
				}
				return nil
			})
		},
	}
}

func acRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an acceptance criterion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(store *catalog.Store) error {
				if err := store.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("id", args[0]).Msg("acceptance criterion removed")
				return nil
			})
		},
	}
}

func acImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append acceptance criteria from a JSON or YAML list",
		Long: `Append acceptance criteria from a file holding a list. Items are either plain
strings (criterion text) or objects with "id" and "text".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read criteria: %w", err)
			}
			items, err := parseCriteria(data)
			if err != nil {
				return err
			}
			return withCatalog(func(store *catalog.Store) error {
				added, err := store.Import(cmd.Context(), items)
				if err != nil {
					return err
				}
				log.Info().Int("count", len(added)).Msg("acceptance criteria imported")
				return nil
			})
		},
	}
}

type criterionEntry struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

func (e *criterionEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.ID = ""
		return node.Decode(&e.Text)
	}
	type plain criterionEntry
	return node.Decode((*plain)(e))
}

// parseCriteria decodes a criteria list. JSON input parses as YAML.
func parseCriteria(data []byte) ([]catalog.Criterion, error) {
	var entries []criterionEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse criteria: %w", err)
	}
	out := make([]catalog.Criterion, 0, len(entries))
	for i, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			return nil, fmt.Errorf("criterion %d: text is required", i)
		}
		out = append(out, catalog.Criterion{ID: strings.TrimSpace(e.ID), Text: text})
	}
	return out, nil
}
