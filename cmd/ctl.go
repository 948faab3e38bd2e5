package cmd

import (
	"fmt"
	"strings"

	"github.com/encodeous/bfroute/core"
	"github.com/spf13/cobra"
)

var ctlCmd = &cobra.Command{
	Use:     "ctl <socket> <command...>",
	Aliases: []string{"c"},
	Short:   "Sends a command to a running host through its control socket",
	Example: "  bfroute ctl /run/bfroute.sock SHOWRT\n  bfroute ctl /run/bfroute.sock LINKDOWN 10.0.0.2 4000",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := core.IPCCall(args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
	GroupID: "host",
}

func init() {
	rootCmd.AddCommand(ctlCmd)
}
