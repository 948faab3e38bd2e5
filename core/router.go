package core

import (
	"fmt"
	"time"

	"github.com/encodeous/bfroute/perf"
	"github.com/encodeous/bfroute/protocol"
	"github.com/encodeous/bfroute/state"
)

// PacketWriter delivers an encoded packet to a directly connected host.
type PacketWriter interface {
	WriteTo(pkt []byte, to state.Addr) error
}

// HostRouter connects the routing algorithm to the socket and runs the
// broadcast scheduler.
type HostRouter struct {
	*state.State
	Out PacketWriter
}

func (r *HostRouter) send(to state.Addr, m protocol.Message) {
	if err := r.Out.WriteTo(protocol.Encode(m), to); err != nil {
		r.Env.Log.Warn("failed to send packet", "to", to, "kind", m.Kind(), "error", err)
	}
}

func (r *HostRouter) SendRouteUpdate(neigh state.Addr, vec []protocol.VectorEntry) {
	r.send(neigh, &protocol.RouteUpdate{Source: r.Self, Entries: vec})
}

func (r *HostRouter) SendLinkUp(neigh state.Addr) {
	r.send(neigh, &protocol.LinkUp{From: r.Self})
}

func (r *HostRouter) SendLinkDown(neigh state.Addr) {
	r.send(neigh, &protocol.LinkDown{From: r.Self})
}

func (r *HostRouter) SendCostChange(neigh state.Addr, cost state.Cost) {
	r.send(neigh, &protocol.CostChange{From: r.Self, Cost: cost})
}

func (r *HostRouter) SendFileSegment(neigh state.Addr, seg *protocol.FileSegment) {
	perf.SegmentsSent.Add(1)
	r.send(neigh, seg)
}

func (r *HostRouter) Log(event RouterEvent, desc string, args ...any) {
	if event >= InconsistentState {
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

// tickDelay is how often the scheduler checks for due broadcasts and silent neighbours.
func tickDelay(interval time.Duration) time.Duration {
	return min(max(interval/4, state.MinTickDelay), state.MaxTickDelay)
}

func (r *HostRouter) Init(s *state.State) error {
	r.State = s
	if r.Out == nil {
		r.Out = Get[*Host](s)
	}
	s.Log.Debug("init router", "neighbours", len(s.Neighbours), "interval", s.UpdateInterval)

	// announce ourselves as soon as the loop starts
	s.Env.Dispatch(func(s *state.State) error {
		Broadcast(s.RouterState, r)
		return nil
	})
	s.Env.RepeatTask(func(s *state.State) error {
		Tick(s.RouterState, r)
		return nil
	}, tickDelay(s.UpdateInterval))
	return nil
}

func (r *HostRouter) Cleanup(s *state.State) error {
	r.State = nil
	r.Out = nil
	return nil
}
