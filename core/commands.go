package core

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"strings"
	"time"

	"github.com/encodeous/bfroute/state"
	"github.com/olekukonko/tablewriter"
)

var ErrUnknownCommand = errors.New("unrecognized command")

// UsageError is returned when a command is given the wrong arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "correct use: " + e.Usage
}

type command struct {
	usage string
	args  int
	run   func(e *state.Env, args []string, w io.Writer) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"SHOWRT":     {"SHOWRT", 0, showRoutes},
		"NEIGHBOURS": {"NEIGHBOURS", 0, showNeighbours},
		"CLOSE":      {"CLOSE", 0, closeHost},
		"LINKUP":     {"LINKUP <IP address> <port>", 2, linkUpCmd},
		"LINKDOWN":   {"LINKDOWN <IP address> <port>", 2, linkDownCmd},
		"CHANGECOST": {"CHANGECOST <IP address> <port> <cost>", 3, changeCostCmd},
		"TRANSFER":   {"TRANSFER <filename> <IP address> <port>", 3, transferCmd},
		"HELP":       {"HELP", 0, help},
	}
}

// Exec runs one operator command, writing its output to w. Blank lines are ignored.
func Exec(e *state.Env, line string, w io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToUpper(fields[0])]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	if len(fields)-1 < cmd.args {
		return &UsageError{Usage: cmd.usage}
	}
	return cmd.run(e, fields[1:], w)
}

func parseTarget(ip, port string) (state.Addr, error) {
	return state.ParseAddr(net.JoinHostPort(ip, port))
}

func showRoutes(e *state.Env, _ []string, w io.Writer) error {
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return maps.Clone(s.Routes), nil
	})
	if err != nil {
		return err
	}
	routes := res.(state.RoutingTable)
	fmt.Fprintf(w, "Timestamp: %s\n", time.Now().Format("2006-01-02 15:04:05.000000"))
	table := newTable(w, "Destination", "Cost", "Link")
	for _, dest := range routes.Destinations() {
		r := routes[dest]
		table.Append([]string{string(dest), r.Cost.String(), string(r.Nh)})
	}
	table.Render()
	return nil
}

func showNeighbours(e *state.Env, _ []string, w io.Writer) error {
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		rows := make([][]string, 0, len(s.Neighbours))
		now := time.Now()
		for _, n := range s.Neighbours {
			st := "down"
			if n.Active {
				st = "up"
			}
			rows = append(rows, []string{
				string(n.Id),
				n.DirectCost.String(),
				st,
				now.Sub(n.LastContact).Truncate(time.Millisecond).String(),
			})
		}
		return rows, nil
	})
	if err != nil {
		return err
	}
	table := newTable(w, "Neighbour", "Cost", "Link", "Last contact")
	table.AppendBulk(res.([][]string))
	table.Render()
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

func closeHost(e *state.Env, _ []string, w io.Writer) error {
	fmt.Fprintln(w, "shutting down")
	e.Cancel(fmt.Errorf("%w: closed by operator", ErrShutdown))
	return nil
}

func linkUpCmd(e *state.Env, args []string, w io.Writer) error {
	addr, err := parseTarget(args[0], args[1])
	if err != nil {
		return err
	}
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		if n := s.GetNeighbour(addr); n != nil && n.Active {
			return fmt.Sprintf("link to %s already up", addr), nil
		}
		if err := LinkUp(s.RouterState, Get[*HostRouter](s), addr); err != nil {
			return nil, err
		}
		return fmt.Sprintf("link to %s up", addr), nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, res)
	return nil
}

func linkDownCmd(e *state.Env, args []string, w io.Writer) error {
	addr, err := parseTarget(args[0], args[1])
	if err != nil {
		return err
	}
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		if n := s.GetNeighbour(addr); n != nil && !n.Active {
			return fmt.Sprintf("link to %s already down", addr), nil
		}
		if err := LinkDown(s.RouterState, Get[*HostRouter](s), addr, true); err != nil {
			return nil, err
		}
		return fmt.Sprintf("link to %s down", addr), nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, res)
	return nil
}

func changeCostCmd(e *state.Env, args []string, w io.Writer) error {
	addr, err := parseTarget(args[0], args[1])
	if err != nil {
		return err
	}
	cost, err := state.ParseCost(args[2])
	if err != nil {
		return err
	}
	_, err = e.DispatchWait(func(s *state.State) (any, error) {
		return nil, ChangeCost(s.RouterState, Get[*HostRouter](s), addr, cost, true)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "cost of link to %s is now %s\n", addr, cost)
	return nil
}

func transferCmd(e *state.Env, args []string, w io.Writer) error {
	dst, err := parseTarget(args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "transferring %s to %s\n", args[0], dst)
	n, err := Transfer(e, args[0], dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sent %s in %d segments\n", args[0], n)
	return nil
}

func help(_ *state.Env, _ []string, w io.Writer) error {
	for _, name := range []string{"SHOWRT", "NEIGHBOURS", "LINKUP", "LINKDOWN", "CHANGECOST", "TRANSFER", "CLOSE", "HELP"} {
		fmt.Fprintln(w, commands[name].usage)
	}
	return nil
}
