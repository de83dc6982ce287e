package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iop-apl-uw/commlog/internal/commlog"
	"github.com/iop-apl-uw/commlog/internal/config"
	"github.com/iop-apl-uw/commlog/internal/render"
	"github.com/iop-apl-uw/commlog/internal/store"
)

func statusCmd() *cobra.Command {
	var glider, predictions, fixes int
	var fmtName string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest call, last fix, and surface drift for a glider",
		Args:  cobra.NoArgs,
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

			latest, err := db.LatestCall(glider)
			if err != nil {
				return err
			}
			if latest == nil {
				fmt.Println("No calls ingested. Run 'commlog ingest' first.")
				return nil
			}

			coll, _, err := commlog.Process(latest.LogPath, commlog.Options{
				KnownFiles:  cfg.KnownFiles,
				LegacyNames: cfg.Ver65Names,
				Logger:      newLogger(),
			}, commlog.Resume{})
			if err != nil && coll == nil {
				return fmt.Errorf("parse %s: %w", latest.LogPath, err)
			}

			fmt.Println(render.CallLine(latest.Glider, latest.Dive, latest.Cycle, latest.Call,
				latest.Connected, latest.Lat, latest.Lon))
			fmt.Printf("Last fix: %s\n", render.LastFix(coll.LastSurfacing(), fmtName))

			if ver, rev, ok := coll.LastSoftwareVersion(); ok {
				fmt.Printf("Software: %.2f rev %s\n", ver, rev)
			}
			if frag, ok := coll.LastFragmentSize(); ok {
				fmt.Printf("Fragment size: %d bytes\n", frag)
			}

			if msg, ok := coll.Rebooted(); ok {
				fmt.Println(msg)
			}

			est, err := coll.PredictDrift(predictions, fixes, time.Now().UTC())
			if err != nil {
				fmt.Printf("Drift: unavailable (%v)\n", err)
				return nil
			}
			fmt.Printf("Drift (%d fixes):\n%s\n", est.Fixes, render.Drift(est, fmtName))
			return nil
		},
	}

	cmd.Flags().IntVar(&glider, "glider", 0, "Glider id (0 = most recently heard)")
	cmd.Flags().IntVar(&predictions, "predict", 3, "Hours of drift prediction")
	cmd.Flags().IntVar(&fixes, "fixes", 4, "GPS fixes to estimate drift from")
	cmd.Flags().StringVar(&fmtName, "format", "ddmin", "Position format (ddmin or nmea)")

	return cmd
}
