package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheEntropyCollective/mediavault/pkg/util"
)

var (
	configPath string
	jsonOutput bool
	actAs      string

	rootCmd = &cobra.Command{
		Use:   "mediavault",
		Short: "MediaVault - encrypted media storage with per-resource access control.",
		Long: `MediaVault stores media encrypted at rest under per-resource secrets and
serves it only to users holding a grant on the owning resource.

Usage:
  mediavault <command> [flags]

Run 'mediavault help <command>' for more details on a specific command.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ~/.mediavault/config.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().StringVar(&actAs, "as", "", "act as this user instead of as an administrator")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(grantsCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			_ = util.PrintJSONError(os.Stdout, err)
		} else {
			fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+util.FormatError(err))
		}
		os.Exit(1)
	}
}
