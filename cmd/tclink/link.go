package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/metalagman/tclink/internal/catalog"
	"github.com/metalagman/tclink/internal/config"
	"github.com/metalagman/tclink/internal/document"
	"github.com/metalagman/tclink/internal/linkage"
	"github.com/metalagman/tclink/internal/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const stdinName = "-"

func linkCmd() *cobra.Command {
	var (
		outPath  string
		inPlace  bool
		format   string
		acIDs    []string
		workers  int
		noRecord bool
	)
	cmd := &cobra.Command{
		Use:   "link [file]",
		Short: "Link unlinked test cases to the primary acceptance criterion",
		Long: `Read a test case document from file (stdin when omitted or "-"), assign the first
known acceptance criteria id to every test case without linkage, and write the result
to stdout, --out, or back to the file with --in-place.

Known ids come from --ac, then the document's known_ac_ids, then linker.known_ac_ids
in config, then the acceptance criteria catalog.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := stdinName
			if len(args) == 1 {
				input = args[0]
			}
			if inPlace && input == stdinName {
				return errors.New("--in-place requires a file argument")
			}
			if inPlace && outPath != "" {
				return errors.New("--in-place and --out are mutually exclusive")
			}
			if inPlace {
				outPath = input
			}

			_, cfg, err := loadEnv()
			if err != nil {
				return err
			}
			inFormat, outFormat, err := linkFormats(format, cfg.Output.Format, input, outPath)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd.InOrStdin(), input, inFormat)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Linker.Workers
			}
			resolver := run.Resolver{Flags: normalizeIDs(acIDs), Config: cfg.Linker.KnownACIDs}
			commit := func(doc *document.Document) error {
				return writeDocument(cmd.OutOrStdout(), outPath, doc, outFormat)
			}

			if noRecord {
				summary, err := linkUnrecorded(cmd, cfg, doc, resolver, workers, inPlace, commit)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.ErrOrStderr(), renderSummary(summary))
				return nil
			}

			storeDB, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			resolver.Catalog = catalog.NewStore(storeDB)
			runner := run.NewRunner(run.NewStore(storeDB), resolver, cfg.StateDir, workers)
			res, err := runner.Run(cmd.Context(), run.Request{
				Document: doc,
				Input:    inputName(input),
				Commit:   commit,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.ErrOrStderr(), renderSummary(linkSummary{
				RunID:       res.RunID,
				Source:      res.Report.Source,
				DefaultACID: res.Report.DefaultACID,
				Total:       res.Report.Summary.Total,
				AutoLinked:  res.Report.Summary.AutoLinked,
			}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the linked document to this file instead of stdout")
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "rewrite the input file")
	cmd.Flags().StringVar(&format, "format", "", "document format: auto, json or yaml (default from config)")
	cmd.Flags().StringArrayVar(&acIDs, "ac", nil, "known acceptance criteria id, first is the default (repeatable)")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of linker workers (default from config)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record a run or consult the catalog")
	return cmd
}

// linkUnrecorded links without touching the database. In-place rewrites still
// take the run lock.
func linkUnrecorded(
	cmd *cobra.Command,
	cfg config.Config,
	doc *document.Document,
	resolver run.Resolver,
	workers int,
	inPlace bool,
	commit func(*document.Document) error,
) (linkSummary, error) {
	if inPlace {
		lock, err := run.AcquireRunLock(cfg.StateDir)
		if err != nil {
			return linkSummary{}, err
		}
		defer func() { _ = lock.Release() }()
	}
	ids, source, err := resolver.Resolve(cmd.Context(), doc)
	if err != nil {
		return linkSummary{}, err
	}
	res, err := linkage.LinkConcurrent(cmd.Context(), doc.TestCases, ids, workers)
	if err != nil {
		return linkSummary{}, err
	}
	if err := commit(doc); err != nil {
		return linkSummary{}, fmt.Errorf("write output: %w", err)
	}
	log.Debug().Str("source", source).Int("auto_linked", len(res.AutoLinked)).Msg("linked without recording")
	return linkSummary{
		Source:      source,
		DefaultACID: res.DefaultID,
		Total:       res.Total,
		AutoLinked:  len(res.AutoLinked),
	}, nil
}

// linkFormats picks input and output formats. An explicit format applies to
// both; "auto" follows file extensions and keeps the input format for stdout.
func linkFormats(flagFormat, cfgFormat, input, output string) (document.Format, document.Format, error) {
	name := strings.TrimSpace(flagFormat)
	if name == "" {
		name = cfgFormat
	}
	if name != "" && name != "auto" {
		f, err := document.ParseFormat(name)
		if err != nil {
			return "", "", err
		}
		return f, f, nil
	}
	in := document.JSON
	if input != stdinName {
		in = document.FormatFromPath(input)
	}
	out := in
	if output != "" {
		out = document.FormatFromPath(output)
	}
	return in, out, nil
}

func readDocument(stdin io.Reader, input string, format document.Format) (*document.Document, error) {
	if input == stdinName {
		return document.Decode(stdin, format)
	}
	return document.ReadFile(input, format)
}

func writeDocument(stdout io.Writer, path string, doc *document.Document, format document.Format) error {
	if path == "" {
		return document.Encode(stdout, doc, format)
	}
	return document.WriteFile(path, doc, format)
}

func inputName(input string) string {
	if input == stdinName {
		return "stdin"
	}
	if abs, err := filepath.Abs(input); err == nil {
		return abs
	}
	return input
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
