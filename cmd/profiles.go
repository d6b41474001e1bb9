package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/profiles"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List and install review profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available review profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		all, err := profiles.List(cfg.Scan.ProfilesDir)
		if err != nil {
			return err
		}
		for _, p := range all {
			src := "user"
			if p.Bundled {
				src = "bundled"
			}
			langs := "all"
			if len(p.Languages) > 0 {
				langs = strings.Join(p.Languages, ",")
			}
			marker := " "
			if p.Name == cfg.Scan.Profile {
				marker = "*"
			}
			fmt.Printf("%s %-18s %-8s %-16s %s\n", marker, p.Name, src, langs, p.Description)
		}
		return nil
	},
}

var profilesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Copy the bundled profiles into the profiles directory for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		dir := cfg.Scan.ProfilesDir
		if dir == "" {
			dir = profiles.DefaultDir()
		}
		if err := profiles.Init(dir); err != nil {
			return err
		}
		fmt.Printf("Profiles installed in %s\n", dir)
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesInitCmd)
}
