package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "preint",
		Short: "Pretested integration - merge, build, then publish or roll back",
		Long: `preint merges a candidate branch into the integration branch of a local
working copy, runs the build there, and pushes the result only if the build
meets the required result. Failed integrations are rolled back.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: .preint.toml or ~/.config/preint/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log git and build activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
