package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prosa/internal/cache"
	"prosa/internal/lsp"
	"prosa/internal/version"
)

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the prosa language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func init() {
	lspCmd.Flags().Bool("disk-cache", false, "persist checker results between sessions")
	lspCmd.Flags().String("cache-dir", "", "directory of the persistent cache (default: $XDG_CACHE_HOME/prosa)")
}

// runLSP serves editors on stdin/stdout. Logs go to stderr; the workspace
// configuration is read when the client initializes.
func runLSP(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(cmd, nil)
	if err != nil {
		return err
	}
	useDisk, err := cmd.Flags().GetBool("disk-cache")
	if err != nil {
		return fmt.Errorf("failed to get disk-cache flag: %w", err)
	}
	cacheDir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return fmt.Errorf("failed to get cache-dir flag: %w", err)
	}
	var disk *cache.Disk
	if useDisk {
		if disk, err = cache.OpenDisk(cacheDir); err != nil {
			return fmt.Errorf("open disk cache: %w", err)
		}
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Disk:    disk,
		Logger:  log,
		Version: version.Version,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
