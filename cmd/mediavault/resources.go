package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheEntropyCollective/mediavault/pkg/util"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List the resources visible to the caller",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		resources, err := a.vault.ListAccessibleResources(cmd.Context(), cliIdentity())
		if err != nil {
			return err
		}
		if jsonOutput {
			return util.PrintJSONSuccess(cmd.OutOrStdout(), resources)
		}
		if len(resources) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("→")+" No resources")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tOBJECTS\tSIZE\tCREATED BY")
		for _, r := range resources {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Name, r.ObjectCount, util.FormatSize(r.TotalBytes), r.CreatedBy)
		}
		return w.Flush()
	},
}
