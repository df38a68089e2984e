package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print arena, index, and snapshot statistics for a database",
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	db, cfg, err := openDB(cmd)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	fmt.Printf("Data directory:      %s\n", cfg.DataDir)
	fmt.Printf("Slot:                %d\n", db.Slot())
	fmt.Printf("Accounts:            %d\n", db.AccountsCount())
	fmt.Printf("Total blocks:        %d\n", db.TotalBlocks())
	fmt.Printf("Deallocated blocks:  %d\n", db.DeallocatedBlocks())
	fmt.Printf("Utilized bytes:      %d\n", db.UtilizedBytes())
	fmt.Printf("Arena size bytes:    %d\n", db.SizeBytes())
	fmt.Printf("Snapshots held:      %d\n", db.SnapshotsHeld())

	return nil
}
