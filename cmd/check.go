package cmd

import (
	"fmt"

	"github.com/encodeous/bfroute/state"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <config>",
	Short: "Validate a configuration and print it as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.ReadConfig(args[0])
		if err != nil {
			return err
		}
		out, err := state.MarshalConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
	GroupID: "tools",
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
