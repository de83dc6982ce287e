package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iop-apl-uw/commlog/internal/commlog"
	"github.com/iop-apl-uw/commlog/internal/render"
)

func parseCmd() *cobra.Command {
	var scanBack, ver65, timeline bool
	var knownFiles []string
	var offset int64

	cmd := &cobra.Command{
		Use:   "parse <comm.log>",
		Short: "Parse one comm.log and dump its sessions",
		Long: `Parses a comm.log from the given byte offset (default: the whole file)
and prints every reconstructed session. With --timeline the raw line
record is printed instead, merged with an adjacent history.log when one
exists next to the comm.log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			opts := commlog.Options{
				KnownFiles:  knownFiles,
				ScanBack:    scanBack,
				LegacyNames: ver65,
				MissionDir:  filepath.Dir(args[0]),
				Logger:      log,
			}

			coll, _, err := commlog.Process(args[0], opts, commlog.Resume{Offset: offset})
			if err != nil {
				if coll == nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "parse ended early: %v\n", err)
			}
			if coll == nil {
				// Offset already at end of file.
				return nil
			}

			if timeline {
				return printTimeline(args[0], coll, log)
			}

			fmt.Print(render.Sessions(coll, termWidth()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&scanBack, "scan-back", false, "Start at the most recent Connected line instead of the offset")
	cmd.Flags().BoolVar(&ver65, "ver65-names", false, "Remap version 65 transfer filenames")
	cmd.Flags().StringSliceVar(&knownFiles, "known-files", nil, "Override the upload filename list")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset to start parsing from")
	cmd.Flags().BoolVar(&timeline, "timeline", false, "Print the raw line timeline, merged with history.log")

	return cmd
}

func printTimeline(logPath string, coll *commlog.Collection, log *slog.Logger) error {
	lines := coll.RawLines

	histPath := filepath.Join(filepath.Dir(logPath), "history.log")
	if _, err := os.Stat(histPath); err == nil {
		hist, err := commlog.ParseHistoryLog(histPath, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "history.log: %v\n", err)
		} else {
			lines = commlog.MergeRawLines(lines, hist)
		}
	}

	for _, l := range lines {
		ts := "                   "
		if !l.TS.IsZero() {
			ts = l.TS.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %s\n", ts, l.Text)
	}
	return nil
}

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}
