package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/sapling/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to .sapling.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		path, err := config.Save(cfg, config.WithDir(dir))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		return nil
	},
}
