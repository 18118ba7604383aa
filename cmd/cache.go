package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the discovery cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired discovery cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.DeleteExpiredDiscovery(ctx)
		if err != nil {
			return eris.Wrap(err, "prune discovery cache")
		}
		zap.L().Info("discovery cache pruned", zap.Int("deleted", n))
		return printJSON(cmd.OutOrStdout(), map[string]int{"deleted": n})
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
