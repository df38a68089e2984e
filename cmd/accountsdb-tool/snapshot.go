package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take a snapshot at the current slot if it is a snapshot boundary",
	RunE:  runSnapshot,
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	slot := db.Slot()
	db.SetSlot(slot) // re-applies the lifecycle rules, which take a snapshot only when slot hits a snapshot boundary

	if !db.SnapshotExists(slot) {
		return fmt.Errorf("slot %d is not a snapshot boundary for the configured snapshot frequency; advance to one first", slot)
	}

	fmt.Printf("Snapshot confirmed at slot %d\n", slot)
	return nil
}
