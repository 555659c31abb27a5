package main

import (
	"context"
	"fmt"

	"mdip/core/appbootstrap"
	"mdip/core/seed"

	"github.com/spf13/cobra"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users and sample records from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.LoadFile(seedFile)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			res, err := seed.NewSeeder(rt.Auth, rt.Records, logger).Apply(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "users created=%d skipped=%d incidents=%d datasets=%d tickets=%d\n",
				res.UsersCreated, res.UsersSkipped, res.Incidents, res.Datasets, res.Tickets)
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file path")
	_ = seedCmd.MarkFlagRequired("file")
}
