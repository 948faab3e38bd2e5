package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/encodeous/bfroute/perf"
	"github.com/encodeous/bfroute/protocol"
	"github.com/encodeous/bfroute/state"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
)

// ResolveSelf picks the address this host binds and advertises. Without an
// explicit host, the first IPv4 address of the machine's hostname is used.
func ResolveSelf(cfg *state.LocalCfg) (state.Addr, error) {
	host := cfg.Host
	if host == "" {
		name, err := os.Hostname()
		if err != nil {
			return "", err
		}
		ips, err := net.LookupIP(name)
		if err != nil {
			return "", fmt.Errorf("resolve hostname %s: %w", name, err)
		}
		for _, ip := range ips {
			if ip4 := ip.To4(); ip4 != nil {
				host = ip4.String()
				break
			}
		}
		if host == "" {
			return "", fmt.Errorf("hostname %s has no IPv4 address", name)
		}
	}
	return state.JoinAddr(host, cfg.Port), nil
}

// Host owns the UDP socket and the goroutines feeding the dispatch loop.
type Host struct {
	*state.State
	Conn  net.PacketConn
	pconn *ipv4.PacketConn
	ctl   net.Listener
	group errgroup.Group
	peers map[state.Addr]*net.UDPAddr
}

func (h *Host) Init(s *state.State) error {
	h.State = s
	h.peers = make(map[state.Addr]*net.UDPAddr)

	lc := net.ListenConfig{Control: controlSocket}
	conn, err := lc.ListenPacket(s.Context, "udp4", string(s.Self))
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.Self, err)
	}
	h.Conn = conn
	h.pconn = ipv4.NewPacketConn(conn)
	s.Log.Info("listening", "addr", conn.LocalAddr())

	if s.CtlSocket != "" {
		ctl, err := ListenCtl(s.CtlSocket)
		if err != nil {
			_ = conn.Close()
			return err
		}
		h.ctl = ctl
		s.Log.Info("control socket ready", "path", s.CtlSocket)
		h.group.Go(func() error {
			ServeCtl(s.Env, ctl, &h.group)
			return nil
		})
	}

	h.group.Go(func() error {
		<-s.Context.Done()
		_ = h.Conn.Close()
		if h.ctl != nil {
			_ = h.ctl.Close()
		}
		return nil
	})
	h.group.Go(func() error {
		return h.readLoop(s.Env)
	})
	return nil
}

func (h *Host) Cleanup(s *state.State) error {
	if err := h.group.Wait(); err != nil {
		return err
	}
	if s.CtlSocket != "" {
		_ = os.Remove(s.CtlSocket)
	}
	return nil
}

func (h *Host) readLoop(e *state.Env) error {
	msgs := make([]ipv4.Message, state.RecvBatchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, state.MSS)}
	}
	for {
		n, err := h.pconn.ReadBatch(msgs, 0)
		if err != nil {
			if e.Context.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			e.Log.Error("failed to read from socket", "error", err)
			e.Cancel(err)
			return err
		}
		perf.RecvBatchSize.Add(float64(n))
		for _, msg := range msgs[:n] {
			from, _ := msg.Addr.(*net.UDPAddr)
			perf.RecvPacketPerSecond.Add(1)
			perf.RecvBytesPerSecond.Add(float64(msg.N))
			Receive(e, msg.Buffers[0][:msg.N], from)
		}
	}
}

// Receive decodes one datagram and queues its handler on the dispatch loop.
// The packet buffer may be reused once Receive returns.
func Receive(e *state.Env, pkt []byte, from *net.UDPAddr) {
	m, err := protocol.Decode(pkt)
	if err != nil {
		perf.MalformedPackets.Add(1)
		e.Log.Warn("dropped packet", "from", from, "error", err)
		return
	}

	switch m := m.(type) {
	case *protocol.RouteUpdate:
		e.Dispatch(func(s *state.State) error {
			perf.RouteUpdates.Add(1)
			HandleRouteUpdate(s.RouterState, Get[*HostRouter](s), m.Source, m.Entries)
			return nil
		})
	case *protocol.LinkUp:
		e.Dispatch(func(s *state.State) error {
			PeerLinkUp(s.RouterState, Get[*HostRouter](s), m.From)
			return nil
		})
	case *protocol.LinkDown:
		e.Dispatch(func(s *state.State) error {
			return LinkDown(s.RouterState, Get[*HostRouter](s), m.From, false)
		})
	case *protocol.CostChange:
		e.Dispatch(func(s *state.State) error {
			return ChangeCost(s.RouterState, Get[*HostRouter](s), m.From, m.Cost, false)
		})
	case *protocol.FileSegment:
		e.Dispatch(func(s *state.State) error {
			if from != nil {
				if n := s.GetNeighbour(state.Addr(from.String())); n != nil {
					n.Touch(time.Now())
				}
			}
			return Get[*Transfers](s).Receive(s, m)
		})
	}
}

// WriteTo sends pkt to a neighbour. Only called from the dispatch loop.
func (h *Host) WriteTo(pkt []byte, to state.Addr) error {
	dst, ok := h.peers[to]
	if !ok {
		var err error
		dst, err = to.UDPAddr()
		if err != nil {
			return err
		}
		h.peers[to] = dst
	}
	_ = h.Conn.SetWriteDeadline(time.Now().Add(time.Second))
	n, err := h.Conn.WriteTo(pkt, dst)
	if err != nil {
		return err
	}
	perf.SentPacketPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(n))
	return nil
}
