package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile      string
	overrideFile string
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - universal gateway for LLM providers",
	Long: `Relay fronts heterogeneous LLM providers behind one OpenAI-compatible
HTTP surface: alias routing with fallback chains, managed key pools,
reasoning agents with MCP tools, response caching, and metrics.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&overrideFile, "override", "", "sparse override config merged on top")
}
