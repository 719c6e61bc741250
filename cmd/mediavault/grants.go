package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/util"
)

var (
	grantResource  string
	grantUser      string
	grantView      bool
	grantUpload    bool
	revokeResource string
	revokeUser     string
	listResource   string
)

func init() {
	grantCmd.Flags().StringVarP(&grantResource, "resource", "r", "", "resource ID")
	grantCmd.Flags().StringVarP(&grantUser, "user", "u", "", "user to grant access to")
	grantCmd.Flags().BoolVar(&grantView, "view", true, "allow viewing the resource's media")
	grantCmd.Flags().BoolVar(&grantUpload, "upload", false, "allow uploading media to the resource")
	_ = grantCmd.MarkFlagRequired("resource")
	_ = grantCmd.MarkFlagRequired("user")

	revokeCmd.Flags().StringVarP(&revokeResource, "resource", "r", "", "resource ID")
	revokeCmd.Flags().StringVarP(&revokeUser, "user", "u", "", "user to revoke")
	_ = revokeCmd.MarkFlagRequired("resource")
	_ = revokeCmd.MarkFlagRequired("user")

	grantsCmd.Flags().StringVarP(&listResource, "resource", "r", "", "resource ID")
	_ = grantsCmd.MarkFlagRequired("resource")
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant a user access to a resource",
	Long: `Creates or replaces a user's grant on a resource. Granting neither
--view nor --upload revokes the grant.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		grant, err := a.vault.GrantAccess(cmd.Context(), cliIdentity(), grantResource, grantUser, grantView, grantUpload)
		if err != nil {
			return err
		}
		if jsonOutput {
			return util.PrintJSONSuccess(cmd.OutOrStdout(), grant)
		}
		if grant == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Revoked %s on %s\n", color.GreenString("✓"), color.YellowString(grantUser), grantResource)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Granted %s %s on %s\n", color.GreenString("✓"), color.YellowString(grantUser), capabilities(grant), grantResource)
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a user's access to a resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.vault.RevokeAccess(cmd.Context(), cliIdentity(), revokeResource, revokeUser); err != nil {
			return err
		}
		if jsonOutput {
			return util.PrintJSONSuccess(cmd.OutOrStdout(), map[string]string{"revoked": revokeUser})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Revoked %s on %s\n", color.GreenString("✓"), color.YellowString(revokeUser), revokeResource)
		return nil
	},
}

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "List the grants on a resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		grants, err := a.vault.ListGrants(cmd.Context(), cliIdentity(), listResource)
		if err != nil {
			return err
		}
		if jsonOutput {
			return util.PrintJSONSuccess(cmd.OutOrStdout(), grants)
		}
		if len(grants) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("→")+" No grants on "+listResource)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tCAPABILITIES\tGRANTED BY\tGRANTED AT")
		for _, g := range grants {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.UserID, capabilities(g), g.GrantedBy, g.GrantedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func capabilities(g *metadata.AccessGrant) string {
	switch {
	case g.CanView && g.CanUpload:
		return "view,upload"
	case g.CanUpload:
		return "upload"
	case g.CanView:
		return "view"
	default:
		return "none"
	}
}
