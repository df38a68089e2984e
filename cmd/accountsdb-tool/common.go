package main

import (
	"github.com/magicblock-labs/go-accountsdb/internal/accountsdb"
	"github.com/magicblock-labs/go-accountsdb/pkg/config"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func openDB(cmd *cobra.Command) (*accountsdb.DB, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := accountsdb.Open(cfg.DataDir, cfg.Params())
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}
