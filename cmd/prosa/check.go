package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prosa/internal/check"
	"prosa/internal/observ"
	"prosa/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file.typ>",
	Short: "Check a document once and print the diagnostics",
	Long: `Check the document containing <file.typ>. The configured main file is
checked when there is one, so checking a chapter checks the whole document.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	addReportFlags(checkCmd)
	checkCmd.Flags().Bool("fail", false, "exit with status 1 when diagnostics are reported")
	checkCmd.Flags().Bool("timings", false, "print phase timings to stderr")
	checkCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

// runCheck executes the "check" command: one pipeline run over the document,
// then the report on stdout. A language whose check failed makes the command
// fail after the report of the languages that succeeded.
func runCheck(cmd *cobra.Command, args []string) error {
	checked, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	opts, err := readReportOptions(cmd, os.Args[1:])
	if err != nil {
		return err
	}
	failOnFindings, err := cmd.Flags().GetBool("fail")
	if err != nil {
		return fmt.Errorf("failed to get fail flag: %w", err)
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode("ui", uiValue)
	if err != nil {
		return err
	}

	cfg, log, err := setup(cmd, checked)
	if err != nil {
		return err
	}
	opts.color = !color.NoColor

	ctx := cmd.Context()
	eng, err := check.NewEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	host := check.NewHost(eng)
	defer func() {
		if err := host.Close(); err != nil {
			log.Warn("failed to close backend", "err", err)
		}
	}()

	main, root, err := eng.Target(checked)
	if err != nil {
		return err
	}
	pipe := check.NewPipeline(host, openDisk(cfg, log), log)
	timer := observ.NewTimer()
	req := check.Request{Main: main, Root: root, Timer: timer}

	var res *check.Result
	if enabledFor(mode, os.Stderr) {
		res, err = runCheckWithUI(ctx, log, filepath.Base(main), pipe, req)
	} else {
		res, err = pipe.Run(ctx, req)
	}
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), res, opts); err != nil {
		return err
	}
	if opts.format == "pretty" {
		fmt.Fprintln(cmd.ErrOrStderr(), summaryLine(res))
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("check incomplete: %w", err)
	}
	if failOnFindings && res.Bag.Len() > 0 {
		return errFindings
	}
	return nil
}

type checkOutcome struct {
	result *check.Result
	err    error
}

// runCheckWithUI runs the pipeline in the background and renders its
// progress until the run finishes.
func runCheckWithUI(ctx context.Context, log *slog.Logger, title string, pipe *check.Pipeline, req check.Request) (*check.Result, error) {
	events := make(chan check.Event, 256)
	outcomeCh := make(chan checkOutcome, 1)

	go func() {
		reqCopy := req
		reqCopy.Sink = check.ChannelSink{Ch: events}
		res, err := pipe.Run(ctx, reqCopy)
		outcomeCh <- checkOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		log.Debug("progress UI stopped", "err", err)
	}
	// the UI may quit early (ctrl-c); the run must still be able to send
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	return outcome.result, outcome.err
}
