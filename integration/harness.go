//go:build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"io"
	"maps"
	"math/rand/v2"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/encodeous/bfroute/core"
	"github.com/encodeous/bfroute/state"
	"github.com/stretchr/testify/require"
)

// VirtualLink carries packets between two hosts of a VirtualHarness in both
// directions.
type VirtualLink struct {
	Edge       state.Pair[state.Addr, state.Addr]
	Cost       state.Cost
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
	cut        atomic.Bool
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

// Cut silently drops every packet on the link, as if the wire was pulled.
func (v *VirtualLink) Cut() {
	v.cut.Store(true)
}

func (v *VirtualLink) Restore() {
	v.cut.Store(false)
}

func (v *VirtualLink) delay() time.Duration {
	if v.Jitter == 0 {
		return v.Latency
	}
	return v.Latency + time.Duration(rand.Int64N(int64(v.Jitter)))
}

// VirtualNode is one host of the harness, running the full host stack with an
// in-memory transport instead of a UDP socket.
type VirtualNode struct {
	Addr  state.Addr
	Cfg   state.LocalCfg
	Files chan *state.CompletedFile
	env   *state.Env
	ready chan struct{}
	done  chan error
}

// VirtualHarness is an in-memory network of hosts.
type VirtualHarness struct {
	Interval float64
	Nodes    map[state.Addr]*VirtualNode
	Links    []*VirtualLink
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewHarness(interval float64) *VirtualHarness {
	ctx, cancel := context.WithCancel(context.Background())
	return &VirtualHarness{
		Interval: interval,
		Nodes:    make(map[state.Addr]*VirtualNode),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (v *VirtualHarness) NewNode(addr state.Addr) *VirtualNode {
	n := &VirtualNode{
		Addr: addr,
		Cfg: state.LocalCfg{
			Host:     addr.Host(),
			Port:     addr.Port(),
			Interval: v.Interval,
		},
		Files: make(chan *state.CompletedFile, 16),
		ready: make(chan struct{}),
		done:  make(chan error, 1),
	}
	v.Nodes[addr] = n
	return n
}

// AddLink connects two nodes, configuring each as a neighbour of the other.
func (v *VirtualHarness) AddLink(a, b state.Addr, cost state.Cost) *VirtualLink {
	l := &VirtualLink{Edge: state.Pair[state.Addr, state.Addr]{V1: a, V2: b}, Cost: cost}
	v.Nodes[a].Cfg.Neighbours = append(v.Nodes[a].Cfg.Neighbours, state.NeighbourCfg{Addr: b, Cost: cost})
	v.Nodes[b].Cfg.Neighbours = append(v.Nodes[b].Cfg.Neighbours, state.NeighbourCfg{Addr: a, Cost: cost})
	v.Links = append(v.Links, l)
	return l
}

func (v *VirtualHarness) Link(a, b state.Addr) *VirtualLink {
	for _, l := range v.Links {
		if (l.Edge.V1 == a && l.Edge.V2 == b) || (l.Edge.V1 == b && l.Edge.V2 == a) {
			return l
		}
	}
	return nil
}

type virtualTransport struct {
	net  *VirtualHarness
	self state.Addr
	from *net.UDPAddr
}

func (t *virtualTransport) WriteTo(pkt []byte, to state.Addr) error {
	l := t.net.Link(t.self, to)
	if l == nil {
		return errors.New("no route to host")
	}
	if l.cut.Load() || rand.Float64() < l.PacketLoss {
		return nil
	}
	dst := t.net.Nodes[to]
	data := bytes.Clone(pkt)
	lat := l.delay()
	t.net.inflight.Add(1)
	go func() {
		defer t.net.inflight.Done()
		select {
		case <-dst.ready:
		case <-t.net.ctx.Done():
			return
		}
		if lat > 0 {
			select {
			case <-time.After(lat):
			case <-t.net.ctx.Done():
				return
			}
		}
		core.Receive(dst.env, data, t.from)
	}()
	return nil
}

// Start runs every node and waits until all of them are accepting packets.
// The harness is stopped when the test ends.
func (v *VirtualHarness) Start(t *testing.T) {
	t.Helper()
	for _, n := range v.Nodes {
		transport := &virtualTransport{
			net:  v,
			self: n.Addr,
			from: net.UDPAddrFromAddrPort(netip.MustParseAddrPort(string(n.Addr))),
		}
		go func() {
			n.done <- core.Start(n.Cfg, core.Options{
				LogWriter: io.Discard,
				Sink: func(f *state.CompletedFile) error {
					n.Files <- f
					return nil
				},
				Transport: transport,
				Ready: func(e *state.Env) {
					n.env = e
					close(n.ready)
				},
			})
		}()
	}
	for _, n := range v.Nodes {
		select {
		case <-n.ready:
		case err := <-n.done:
			t.Fatalf("node %s failed to start: %v", n.Addr, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("node %s did not start", n.Addr)
		}
	}
	t.Cleanup(func() { v.Stop(t) })
}

// Stop closes every node and waits for all in-flight packets to drain.
func (v *VirtualHarness) Stop(t *testing.T) {
	for _, n := range v.Nodes {
		n.env.Cancel(core.ErrShutdown)
	}
	for _, n := range v.Nodes {
		select {
		case err := <-n.done:
			require.NoError(t, err, "node %s", n.Addr)
		case <-time.After(5 * time.Second):
			t.Errorf("node %s did not stop", n.Addr)
		}
	}
	v.cancel()
	v.inflight.Wait()
}

// Exec runs an operator command on a node.
func (v *VirtualHarness) Exec(addr state.Addr, line string) (string, error) {
	var out bytes.Buffer
	err := core.Exec(v.Nodes[addr].env, line, &out)
	return out.String(), err
}

func (v *VirtualHarness) Routes(t *testing.T, addr state.Addr) state.RoutingTable {
	t.Helper()
	res, err := v.Nodes[addr].env.DispatchWait(func(s *state.State) (any, error) {
		return maps.Clone(s.Routes), nil
	})
	require.NoError(t, err)
	return res.(state.RoutingTable)
}

// WaitForRoutes waits until every listed route of addr matches want. A want
// entry without a next hop matches on cost alone.
func (v *VirtualHarness) WaitForRoutes(t *testing.T, addr state.Addr, want state.RoutingTable, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var got state.RoutingTable
	for time.Now().Before(deadline) {
		got = v.Routes(t, addr)
		if matches(got, want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("routes of %s did not converge\nwant:\n%s\ngot:\n%s", addr, want, got)
}

func matches(got, want state.RoutingTable) bool {
	for dest, r := range want {
		g, ok := got[dest]
		if !ok || g.Cost != r.Cost {
			return false
		}
		if !r.Cost.IsInf() && r.Nh != "" && g.Nh != r.Nh {
			return false
		}
	}
	return true
}
