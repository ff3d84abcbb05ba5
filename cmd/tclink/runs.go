package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/metalagman/tclink/internal/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and prune link runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsPruneCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent link runs",
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

			records, err := run.NewStore(storeDB).ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				log.Info().Msg("no runs")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tSTATUS\tSOURCE\tTOTAL\tAUTO-LINKED")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", rec.RunID, rec.CreatedAt, rec.Status, rec.Source, rec.Total, rec.AutoLinked)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a link run and its events",
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

			store := run.NewStore(storeDB)
			rec, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := store.Events(cmd.Context(), rec.RunID)
			if err != nil {
				return err
			}
			writeRun(cmd.OutOrStdout(), rec, events)
			return nil
		},
	}
}

func writeRun(w io.Writer, rec run.Record, events []run.EventRecord) {
	fmt.Fprintf(w, "run:         %s\n", rec.RunID)
	fmt.Fprintf(w, "status:      %s\n", rec.Status)
	fmt.Fprintf(w, "created:     %s\n", rec.CreatedAt)
	if rec.FinishedAt != "" {
		fmt.Fprintf(w, "finished:    %s\n", rec.FinishedAt)
	}
	if rec.Input != "" {
		fmt.Fprintf(w, "input:       %s\n", rec.Input)
	}
	fmt.Fprintf(w, "source:      %s\n", rec.Source)
	fmt.Fprintf(w, "total:       %d\n", rec.Total)
	fmt.Fprintf(w, "auto-linked: %d\n", rec.AutoLinked)
	if rec.DefaultACID != "" {
		fmt.Fprintf(w, "default:     %s\n", rec.DefaultACID)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "error:       %s\n", rec.Error)
	}
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w, "events:")
	for _, ev := range events {
		fmt.Fprintf(w, "  %3d %s %-14s %s\n", ev.Seq, ev.TS, ev.Type, ev.Message)
	}
}

func runsPruneCmd() *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune old runs from disk and database",
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

			policy := run.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = run.RetentionPolicy{
					KeepLast: cfg.Retention.KeepLast,
					KeepDays: cfg.Retention.KeepDays,
				}
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep-last or --keep-days (or configure retention in %s)", configPath("."))
			}

			lock, err := run.AcquireRunLock(cfg.StateDir)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			res, err := run.PruneRuns(cmd.Context(), storeDB, cfg.RunsDir(), policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			log.Info().Msgf("%s %d runs (kept %d, skipped %d)", mode, res.Deleted, res.Kept, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}
