package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"prosa/internal/check"
	"prosa/internal/diag"
	"prosa/internal/diagfmt"
	"prosa/internal/version"
)

type reportOptions struct {
	format    string
	withNotes bool
	suggest   bool
	previews  bool
	fullPath  bool
	max       int
	color     bool
	args      []string
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "pretty", "output format (pretty|json|sarif|short)")
	cmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	cmd.Flags().Bool("suggest", true, "include suggested replacements")
	cmd.Flags().Bool("preview", false, "include before/after lines of replacements (json)")
	cmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	cmd.Flags().Int("max-diagnostics", 0, "maximum number of diagnostics to show (0 = all)")
}

func readReportOptions(cmd *cobra.Command, args []string) (reportOptions, error) {
	var (
		opts = reportOptions{args: args}
		err  error
	)
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	opts.format = strings.ToLower(opts.format)
	switch opts.format {
	case "pretty", "json", "sarif", "short":
	default:
		return opts, fmt.Errorf("unknown format %q (expected pretty|json|sarif|short)", opts.format)
	}
	if opts.withNotes, err = cmd.Flags().GetBool("with-notes"); err != nil {
		return opts, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if opts.suggest, err = cmd.Flags().GetBool("suggest"); err != nil {
		return opts, fmt.Errorf("failed to get suggest flag: %w", err)
	}
	if opts.previews, err = cmd.Flags().GetBool("preview"); err != nil {
		return opts, fmt.Errorf("failed to get preview flag: %w", err)
	}
	if opts.fullPath, err = cmd.Flags().GetBool("fullpath"); err != nil {
		return opts, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if opts.max, err = cmd.Flags().GetInt("max-diagnostics"); err != nil {
		return opts, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	return opts, nil
}

// writeReport renders the diagnostics of res in the selected format.
func writeReport(w io.Writer, res *check.Result, opts reportOptions) error {
	pathMode := diagfmt.PathModeRelative
	if opts.fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}
	bag := res.Bag
	if opts.max > 0 && bag.Len() > opts.max && opts.format != "json" {
		bag = diag.NewBag(opts.max)
		for _, d := range res.Bag.Items() {
			if !bag.Add(d) {
				break
			}
		}
	}

	switch opts.format {
	case "json":
		return diagfmt.JSON(w, res.Bag, res.FileSet, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			Max:              opts.max,
			IncludeNotes:     opts.withNotes,
			IncludeFixes:     opts.suggest,
			IncludePreviews:  opts.previews,
		})
	case "sarif":
		return diagfmt.Sarif(w, bag, res.FileSet, diagfmt.SarifRunMeta{
			ToolName:       "prosa",
			ToolVersion:    version.Version,
			InvocationArgs: opts.args,
		})
	case "short":
		return diag.WriteShort(w, bag.Items(), res.FileSet, opts.withNotes)
	}

	diagfmt.Pretty(w, bag, res.FileSet, diagfmt.PrettyOpts{
		Color:     opts.color,
		PathMode:  pathMode,
		Width:     terminalWidth(),
		ShowNotes: opts.withNotes,
		ShowFixes: opts.suggest,
	})
	if hidden := res.Bag.Len() - bag.Len(); hidden > 0 {
		fmt.Fprintf(w, "\n... %d more diagnostics not shown\n", hidden)
	}
	return nil
}

// summaryLine describes a finished run for humans.
func summaryLine(res *check.Result) string {
	langs := make([]string, 0, len(res.Languages))
	for _, l := range res.Languages {
		tag := l.Tag
		if l.Err != nil {
			tag += " (failed)"
		}
		langs = append(langs, tag)
	}
	return fmt.Sprintf("%d diagnostics in %s [%s]", res.Bag.Len(), res.Elapsed.Round(1e6), strings.Join(langs, ", "))
}

func terminalWidth() int {
	if !isTerminal(os.Stdout) {
		return 0
	}
	w, _, err := termSize(os.Stdout)
	if err != nil {
		return 0
	}
	return max(w-8, 20)
}
