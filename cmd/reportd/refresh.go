package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh every aggregate view once and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		scheduler := a.container.Scheduler()
		if scheduler == nil {
			return errors.New("aggregate refresh needs a postgres database")
		}

		result, runErr := scheduler.RunNow(cmd.Context())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
