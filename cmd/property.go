package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/model"
)

var (
	propertyName    string
	propertyAddress string
	propertyCity    string
	propertyState   string
)

var propertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Manage subject properties",
}

var propertyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a property",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Store.CreateProperty(ctx, model.Property{
			Name:    propertyName,
			Address: propertyAddress,
			City:    propertyCity,
			State:   propertyState,
		})
		if err != nil {
			return eris.Wrap(err, "create property")
		}
		zap.L().Info("property created", zap.String("property_id", p.ID), zap.String("name", p.Name))
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var propertyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		props, err := env.Store.ListProperties(ctx)
		if err != nil {
			return eris.Wrap(err, "list properties")
		}
		return printJSON(cmd.OutOrStdout(), props)
	},
}

func init() {
	propertyAddCmd.Flags().StringVar(&propertyName, "name", "", "property name (required)")
	propertyAddCmd.Flags().StringVar(&propertyAddress, "address", "", "street address (required)")
	propertyAddCmd.Flags().StringVar(&propertyCity, "city", "", "city")
	propertyAddCmd.Flags().StringVar(&propertyState, "state", "", "two-letter state code")
	_ = propertyAddCmd.MarkFlagRequired("name")
	_ = propertyAddCmd.MarkFlagRequired("address")

	propertyCmd.AddCommand(propertyAddCmd, propertyListCmd)
	rootCmd.AddCommand(propertyCmd)
}
