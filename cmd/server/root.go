package main

import (
	"log"

	"fundledger/config"
	"fundledger/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var flagLedgerConfig string

var rootCmd = &cobra.Command{
	Use:          "fundledger",
	Short:        "Milestone-gated fund ledger",
	Long:         "Records donations, allocates them to projects and releases funds as milestones are approved.",
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLedgerConfig, "ledger-config", "", "TOML file with ledger tunables (overrides LEDGER_CONFIG)")
}

// loadConfig reads the environment and the optional ledger TOML file.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if flagLedgerConfig != "" {
		lc, err := config.LoadLedgerFile(flagLedgerConfig, cfg.Ledger)
		if err != nil {
			return nil, err
		}
		cfg.Ledger = lc
	}
	return cfg, nil
}

// openDB connects and migrates the schema.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	log.Printf("[db] %s ready", cfg.Database.Driver)
	return db, nil
}
