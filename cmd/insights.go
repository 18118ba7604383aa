package main

import (
	"github.com/spf13/cobra"
)

var (
	insightsJob     string
	insightsNarrate bool
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Compare the subject's rents and availability with its competitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "insights")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Insights.Report(ctx, insightsJob, insightsNarrate)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	insightsCmd.Flags().StringVar(&insightsJob, "job", "", "scrape job ID (required)")
	insightsCmd.Flags().BoolVar(&insightsNarrate, "narrate", false, "add a written market narrative (requires anthropic.key)")
	_ = insightsCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(insightsCmd)
}
