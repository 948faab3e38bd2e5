package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/encodeous/bfroute/core"
	"github.com/encodeous/bfroute/state"
	"github.com/spf13/cobra"
)

var (
	debugAddr string
	noStdin   bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Run a host",
	Long: `Runs a host from a configuration file and reads commands from standard input.

The configuration is either the line format
  <listen port> <update interval seconds>
  <neighbour ip:port> <link cost>
  ...
or a YAML file ending in .yaml or .yml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ready func(e *state.Env)
		if !noStdin {
			ready = func(e *state.Env) {
				go repl(e, cmd.InOrStdin(), cmd.OutOrStdout())
			}
		}
		return core.Bootstrap(args[0], logPath, debugAddr, verbose, ready)
	},
	GroupID: "host",
}

// repl feeds operator commands to the host until input ends or the host stops.
func repl(e *state.Env, in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if e.Context.Err() != nil {
			return
		}
		if err := core.Exec(e, sc.Text(), out); err != nil {
			fmt.Fprintf(out, "ERROR: %v\n", err)
		}
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Serve /debug/metrics and /debug/vars on this address")
	runCmd.Flags().BoolVar(&noStdin, "no-stdin", os.Getenv("BFROUTE_NO_STDIN") != "", "Do not read commands from standard input")
}
