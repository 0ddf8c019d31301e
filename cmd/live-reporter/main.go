package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "live-reporter",
		Short: "Live Reporter - live view of hierarchical test runs",
		Long: `Live Reporter receives the command stream of a running test suite,
keeps it as a tree and serves a live, interactive projection of it to
terminal and browser renderers.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
