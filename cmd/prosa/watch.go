package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prosa/internal/check"
	"prosa/internal/scheduler"
	"prosa/internal/source"
	"prosa/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <file.typ>",
	Short: "Re-check a document whenever one of its files changes",
	Long: `Check the document containing <file.typ>, then watch the main file and
every file it includes and check again after each saved change.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runWatch,
}

func init() {
	addReportFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	checked, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	opts, err := readReportOptions(cmd, args)
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

	w, err := watch.New(0, log)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()
	if err := w.Track([]string{main}); err != nil {
		return fmt.Errorf("watch %s: %w", main, err)
	}

	pipe := check.NewPipeline(host, openDisk(cfg, log), log)
	out := cmd.OutOrStdout()
	header := color.New(color.Faint)
	run := func(ctx context.Context) {
		res, err := pipe.Run(ctx, check.Request{Main: main, Root: root})
		stamp := header.Sprintf("-- %s %s", time.Now().Format("15:04:05"), filepath.Base(main))
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", stamp, err)
			return
		}
		fmt.Fprintf(out, "%s: %s\n", stamp, summaryLine(res))
		if err := writeReport(out, res, opts); err != nil {
			log.Warn("failed to write report", "err", err)
		}
		if err := res.Err(); err != nil {
			fmt.Fprintf(out, "check incomplete: %v\n", err)
		}
		if err := w.Track(diskFiles(res.FileSet, main)); err != nil {
			log.Warn("failed to watch included files", "err", err)
		}
	}

	// file system events are saves: no debounce
	sched := scheduler.New(scheduler.Options{Run: run})
	defer sched.Close()
	sched.Notify(scheduler.Open)

	err = w.Run(ctx, func(string) { sched.Notify(scheduler.Save) })
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// diskFiles lists the files a run read from disk, always including main.
func diskFiles(fs *source.FileSet, main string) []string {
	out := []string{main}
	for i := range fs.Len() {
		f := fs.Get(source.FileID(i))
		if f.Flags&source.FileVirtual != 0 {
			continue
		}
		if p := filepath.FromSlash(f.Path); p != main {
			out = append(out, p)
		}
	}
	return out
}
