package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <target-slot>",
	Short: "Roll the database back to the newest snapshot at or before the given slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	var targetSlot uint64
	if _, err := fmt.Sscanf(args[0], "%d", &targetSlot); err != nil {
		return fmt.Errorf("invalid target slot %q: %w", args[0], err)
	}

	db, _, err := openDB(cmd)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rbSlot, err := db.EnsureAtMost(targetSlot)
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Printf("Rolled back to slot %d\n", rbSlot)
	return nil
}
