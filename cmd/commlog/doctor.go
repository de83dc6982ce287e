package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iop-apl-uw/commlog/internal/config"
	"github.com/iop-apl-uw/commlog/internal/scan"
	"github.com/iop-apl-uw/commlog/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify mission root, DB, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			fmt.Println("=== Mission Root ===")
			checkDir(cfg.MissionRoot)

			fmt.Println("\n=== File Scan ===")
			files, err := scan.ScanRoot(cfg.MissionRoot)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				withHistory := 0
				for _, f := range files {
					if f.HistoryLog != "" {
						withHistory++
					}
				}
				fmt.Printf("  comm.log files:   %d\n", len(files))
				fmt.Printf("  with history.log: %d\n", withHistory)
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'commlog ingest' first)")
				return nil
			}

			db, err := store.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			callCount, err := db.CallCount()
			if err != nil {
				return fmt.Errorf("count calls: %w", err)
			}
			gliders, err := db.Gliders()
			if err != nil {
				return fmt.Errorf("list gliders: %w", err)
			}

			fmt.Printf("  Calls:   %d\n", callCount)
			fmt.Printf("  Gliders: %d", len(gliders))
			for _, g := range gliders {
				fmt.Printf(" sg%03d", g)
			}
			fmt.Println()

			var stateCount int
			if err := db.Raw().QueryRow("SELECT COUNT(*) FROM parse_state").Scan(&stateCount); err != nil {
				fmt.Printf("  parse_state error: %v\n", err)
			} else {
				fmt.Printf("  Tracked logs: %d\n", stateCount)
			}

			if info, err := os.Stat(cfg.DBPath); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}

			return nil
		},
	}
}

func checkDir(path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s (NOT FOUND)\n", path)
	} else if !info.IsDir() {
		fmt.Printf("  %s (NOT A DIRECTORY)\n", path)
	} else {
		fmt.Printf("  %s (OK)\n", path)
	}
}
