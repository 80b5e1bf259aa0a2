package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lumen-hq/relay/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without starting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, overrideFile)
		if err != nil {
			return err
		}
		fmt.Printf("%s: OK (%d providers, %d aliases, %d agents)\n",
			cfgFile, len(cfg.Providers), len(cfg.Aliases), len(cfg.Agents))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
