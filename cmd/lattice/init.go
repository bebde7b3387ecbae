package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/store"
)

var initFromYAML string

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a new .lattice state directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		root, err := os.Getwd()
		if err != nil {
			return err
		}
		if dir != "." {
			root = dir
		}
		latticeDir := root + string(os.PathSeparator) + store.DirName
		st, err := store.Init(latticeDir)
		if err != nil {
			return fmt.Errorf("initializing: %w", err)
		}
		if initFromYAML != "" {
			if store.Exists(st.ConfigPath()) {
				return fmt.Errorf("config.json already exists at %s; remove it before seeding from a yaml template", st.ConfigPath())
			}
			cfg, err := loadYAMLConfig(initFromYAML)
			if err != nil {
				return fmt.Errorf("converting %s: %w", initFromYAML, err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("%s produced an invalid config: %w", initFromYAML, err)
			}
			if err := store.WriteJSONAtomic(st.ConfigPath(), cfg); err != nil {
				return fmt.Errorf("writing %s: %w", st.ConfigPath(), err)
			}
			fmt.Printf("seeded %s from %s\n", st.ConfigPath(), initFromYAML)
		}
		fmt.Printf("initialized %s\n", latticeDir)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initFromYAML, "from-yaml", "", "seed config.json by converting a human-authored lattice.yaml template")
}
