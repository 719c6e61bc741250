package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheEntropyCollective/mediavault/pkg/util"
	"github.com/TheEntropyCollective/mediavault/pkg/vault"
)

var sweepYes bool

func init() {
	sweepCmd.Flags().BoolVarP(&sweepYes, "yes", "y", false, "skip the confirmation prompt")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete ciphertext objects no record references",
	Long: `Deletes objects in the object store that no metadata record references and
that are older than vault.sweep_grace_hours. Such objects are left behind when
a media delete could not reach the object store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !sweepYes && !jsonOutput {
			ok, err := util.PromptYesNo("Delete unreferenced objects from the object store?")
			if err != nil {
				return util.WrapErrorWithSuggestion(err, "Pass --yes to sweep without a terminal")
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("→")+" Sweep cancelled")
				return nil
			}
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.vault.SweepOrphans(cmd.Context(), cliIdentity())
		if err != nil {
			return err
		}
		if jsonOutput {
			return util.PrintJSONSuccess(cmd.OutOrStdout(), report)
		}

		printSweepReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func printSweepReport(w io.Writer, report *vault.SweepReport) {
	status := color.GreenString("✓")
	if report.Failed > 0 {
		status = color.YellowString("!")
	}
	fmt.Fprintf(w, "%s Deleted %d of %d scanned objects in %s\n",
		status, report.Deleted, report.Scanned, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "%s Referenced: %d, too young: %d, failed: %d\n",
		color.CyanString("→"), report.Referenced, report.TooYoung, report.Failed)
}
