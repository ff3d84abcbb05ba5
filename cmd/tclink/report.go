package main

import (
	"fmt"
	"path/filepath"

	"github.com/metalagman/tclink/internal/report"
	"github.com/metalagman/tclink/internal/run"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var raw bool
	var width int
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render the report of a link run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadEnv()
			if err != nil {
				return err
			}
			storeDB, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := run.NewStore(storeDB).GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			runDir := rec.RunDir
			if runDir == "" {
				runDir = filepath.Join(cfg.RunsDir(), rec.RunID)
			}
			rep, err := report.Load(filepath.Join(runDir, report.FileName))
			if err != nil {
				return fmt.Errorf("run %s (%s): %w", rec.RunID, rec.Status, err)
			}
			md := rep.Markdown()
			if raw {
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			}
			out, err := report.Render(md, width)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	return cmd
}
