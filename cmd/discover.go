package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	discoverProperty  string
	discoverSearchURL string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover competing listings for a property and resolve its subject listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Runner.Run(ctx, discoverProperty, discoverSearchURL)
		if err != nil {
			if res != nil && res.Job != nil {
				zap.L().Error("discovery failed", zap.String("job_id", res.Job.ID), zap.Error(err))
			}
			return eris.Wrap(err, "discover")
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverProperty, "property", "", "property ID (required)")
	discoverCmd.Flags().StringVar(&discoverSearchURL, "search-url", "", "search results URL (default derived from the property's city and state)")
	_ = discoverCmd.MarkFlagRequired("property")
	rootCmd.AddCommand(discoverCmd)
}
