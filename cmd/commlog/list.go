package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iop-apl-uw/commlog/internal/config"
	"github.com/iop-apl-uw/commlog/internal/render"
	"github.com/iop-apl-uw/commlog/internal/store"
	"github.com/iop-apl-uw/commlog/internal/tui"
)

func listCmd() *cobra.Command {
	var glider, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse ingested calls, newest first",
		Long: `Opens a TUI panel over the call database when stdout is a terminal; the
preview pane shows the selected session re-rendered from its comm.log.
Plain fixed-width lines are emitted when output is piped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := store.OpenDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if term.IsTerminal(int(os.Stdout.Fd())) {
				return tui.Run(db, glider)
			}

			rows, err := db.ListCalls(glider, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(os.Stderr, "No calls ingested. Run 'commlog ingest' first.")
				return nil
			}
			for _, r := range rows {
				fmt.Println(render.CallLine(r.Glider, r.Dive, r.Cycle, r.Call, r.Connected, r.Lat, r.Lon))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&glider, "glider", 0, "Filter to one glider id (0 = all)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max calls (0 = no limit, piped output only)")

	return cmd
}
