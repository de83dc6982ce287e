package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iop-apl-uw/commlog/internal/config"
	"github.com/iop-apl-uw/commlog/internal/store"
)

func ingestCmd() *cobra.Command {
	var missionRoot string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan the mission root and ingest new comm.log lines into the call database",
		Long: `Walks the mission root for comm.log files and parses each from its stored
byte offset, persisting one row per completed call. Re-running is cheap:
unchanged logs are skipped and replayed sessions replace their old rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if missionRoot != "" {
				cfg.MissionRoot = missionRoot
			}

			db, err := store.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			fmt.Fprintf(os.Stderr, "Scanning %s...\n", cfg.MissionRoot)

			stats, err := store.IngestAll(db, cfg.MissionRoot, store.IngestOptions{
				KnownFiles:  cfg.KnownFiles,
				LegacyNames: cfg.Ver65Names,
				Logger:      newLogger(),
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().StringVar(&missionRoot, "mission-root", "", "Override the configured mission root")

	return cmd
}
