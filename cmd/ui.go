package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/database"
	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Browse past scans and findings in the terminal",
	RunE:  runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		return err
	}
	defer st.Close()

	return tui.NewApp(st).Run()
}
