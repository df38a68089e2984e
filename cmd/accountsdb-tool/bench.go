package main

import (
	"fmt"
	"time"

	"github.com/magicblock-labs/go-accountsdb/internal/storage"
	"github.com/spf13/cobra"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Insert a batch of synthetic accounts and report throughput",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().Int("count", 10_000, "Number of synthetic accounts to insert")
	benchCmd.Flags().Int("data-size", 128, "Bytes of account data per synthetic account")
}

func runBench(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	dataSize, _ := cmd.Flags().GetInt("data-size")

	db, _, err := openDB(cmd)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	owner := storage.Pubkey{1}
	data := make([]byte, dataSize)

	start := time.Now()
	for i := 0; i < count; i++ {
		var key storage.Pubkey
		key[0] = byte(i)
		key[1] = byte(i >> 8)
		key[2] = byte(i >> 16)
		key[3] = byte(i >> 24)

		if err := db.Insert(key, storage.Account{Owner: owner, Lamports: 1, Data: data}); err != nil {
			return fmt.Errorf("insert %d failed: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("Inserted %d accounts in %s (%.0f accounts/sec)\n", count, elapsed, float64(count)/elapsed.Seconds())
	return nil
}
