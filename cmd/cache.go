package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/community-finder/internal/report"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the link cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List cached entries with their age and freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report.Cache(cmd.OutOrStdout(), appInstance.GetCache().Entries(), time.Now())
			return nil
		},
	})
	return cmd
}
