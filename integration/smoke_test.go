//go:build integration

package integration

import (
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/bfroute/core"
	"github.com/encodeous/bfroute/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) uint16 {
	t.Helper()
	c, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer c.Close()
	return uint16(c.LocalAddr().(*net.UDPAddr).Port)
}

type udpHost struct {
	cfg   state.LocalCfg
	env   chan *state.Env
	done  chan error
	files chan *state.CompletedFile
}

func startUDPHost(t *testing.T, cfg state.LocalCfg) *udpHost {
	t.Helper()
	h := &udpHost{
		cfg:   cfg,
		env:   make(chan *state.Env, 1),
		done:  make(chan error, 1),
		files: make(chan *state.CompletedFile, 1),
	}
	go func() {
		h.done <- core.Start(cfg, core.Options{
			LogWriter: io.Discard,
			Sink: func(f *state.CompletedFile) error {
				h.files <- f
				return nil
			},
			Ready: func(e *state.Env) { h.env <- e },
		})
	}()
	var e *state.Env
	select {
	case e = <-h.env:
	case err := <-h.done:
		t.Fatalf("host failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not start")
	}
	t.Cleanup(func() {
		e.Cancel(core.ErrShutdown)
		select {
		case err := <-h.done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("host did not stop")
		}
	})
	return h
}

func TestLoopbackHosts(t *testing.T) {
	pa, pb := freePort(t), freePort(t)
	a := state.JoinAddr("127.0.0.1", pa)
	b := state.JoinAddr("127.0.0.1", pb)
	sock := filepath.Join(t.TempDir(), "a.sock")

	startUDPHost(t, state.LocalCfg{
		Host: "127.0.0.1", Port: pa, Interval: 0.1, CtlSocket: sock,
		Neighbours: []state.NeighbourCfg{{Addr: b, Cost: 2}},
	})
	hb := startUDPHost(t, state.LocalCfg{
		Host: "127.0.0.1", Port: pb, Interval: 0.1,
		Neighbours: []state.NeighbourCfg{{Addr: a, Cost: 2}},
	})

	out, err := core.IPCCall(sock, "NEIGHBOURS")
	require.NoError(t, err)
	assert.Contains(t, out, string(b))

	out, err = core.IPCCall(sock, "SHOWRT")
	require.NoError(t, err)
	assert.Contains(t, out, string(b))

	out, err = core.IPCCall(sock, "FROBNICATE")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ERROR: "))

	path, data := writeFile(t, "loop.bin", 10_000)
	out, err = core.IPCCall(sock, "TRANSFER "+path+" 127.0.0.1 "+strconv.Itoa(int(pb)))
	require.NoError(t, err)
	assert.Contains(t, out, "in 3 segments")

	select {
	case f := <-hb.files:
		assert.Equal(t, "loop.bin", f.Name)
		assert.Equal(t, a, f.Source)
		assert.Equal(t, data, f.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("file did not arrive")
	}
}
