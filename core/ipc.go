package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/encodeous/bfroute/state"
	"golang.org/x/sync/errgroup"
)

const ctlReadTimeout = 10 * time.Second

// IPCCall runs a single command on the host listening on the control socket
// and returns its output.
func IPCCall(socket string, cmd string) (string, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(cmd + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	res, err := io.ReadAll(rw)
	if err != nil {
		return "", err
	}
	return string(res), nil
}

// ListenCtl opens the control socket, replacing a stale one left by a previous run.
func ListenCtl(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if conn, err := net.Dial("unix", path); err == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("control socket %s is in use", path)
		}
		_ = os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	return l, nil
}

// ServeCtl accepts control connections until l is closed. Each connection
// carries one command.
func ServeCtl(e *state.Env, l net.Listener, group *errgroup.Group) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && e.Context.Err() == nil {
				e.Log.Error("control socket accept failed", "error", err)
			}
			return
		}
		group.Go(func() error {
			handleCtlConn(e, conn)
			return nil
		})
	}
}

func handleCtlConn(e *state.Env, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(ctlReadTimeout))
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	line, err := rw.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		e.Log.Debug("bad control request", "error", err)
		return
	}
	e.Log.Debug("control command", "cmd", line)
	if err := Exec(e, line, rw); err != nil {
		fmt.Fprintf(rw, "ERROR: %v\n", err)
	}
	_ = rw.Flush()
}
