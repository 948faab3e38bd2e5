package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/bfroute/protocol"
	"github.com/encodeous/bfroute/state"
	"github.com/google/go-cmp/cmp"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type RouterHarness struct {
	actions []HarnessEvent
}

func (h *RouterHarness) SendRouteUpdate(neigh state.Addr, vec []protocol.VectorEntry) {
	h.actions = append(h.actions, MakeEvent("ROUTE_UPDATE", neigh, vec))
}

func (h *RouterHarness) SendLinkUp(neigh state.Addr) {
	h.actions = append(h.actions, MakeEvent("LINK_UP", neigh))
}

func (h *RouterHarness) SendLinkDown(neigh state.Addr) {
	h.actions = append(h.actions, MakeEvent("LINK_DOWN", neigh))
}

func (h *RouterHarness) SendCostChange(neigh state.Addr, cost state.Cost) {
	h.actions = append(h.actions, MakeEvent("COST_CHANGE", neigh, cost))
}

func (h *RouterHarness) SendFileSegment(neigh state.Addr, seg *protocol.FileSegment) {
	h.actions = append(h.actions, MakeEvent("FILE_SEGMENT", neigh, seg.Dst, seg.Seq))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns the packets sent since the last call, without log events.
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns the router events logged since the last call to GetActions.
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		}
	}
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// VectorTo returns the last vector sent to neigh.
func (e HarnessEvents) VectorTo(neigh state.Addr) ([]protocol.VectorEntry, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		if e[i].Message == "ROUTE_UPDATE" && e[i].Args[0] == neigh {
			return e[i].Args[1].([]protocol.VectorEntry), true
		}
	}
	return nil, false
}

func MakeRouterState(id state.Addr, neighs ...state.NeighbourCfg) *state.RouterState {
	return state.NewRouterState(id, time.Second, neighs)
}

func Link(addr state.Addr, cost state.Cost) state.NeighbourCfg {
	return state.NeighbourCfg{Addr: addr, Cost: cost}
}

func Entry(dest state.Addr, cost state.Cost, nh state.Addr) protocol.VectorEntry {
	return protocol.VectorEntry{Dest: dest, Cost: cost, Nh: nh}
}

// Network is a set of routers whose packets are delivered synchronously by Run.
type Network struct {
	Routers map[state.Addr]*state.RouterState
	queue   []netPacket
}

type netPacket struct {
	from, to state.Addr
	vec      []protocol.VectorEntry
	kind     string
	cost     state.Cost
}

type netRouter struct {
	net  *Network
	self state.Addr
}

func (r *netRouter) SendRouteUpdate(neigh state.Addr, vec []protocol.VectorEntry) {
	r.net.queue = append(r.net.queue, netPacket{from: r.self, to: neigh, vec: vec, kind: "ru"})
}

func (r *netRouter) SendLinkUp(neigh state.Addr) {
	r.net.queue = append(r.net.queue, netPacket{from: r.self, to: neigh, kind: "lu"})
}

func (r *netRouter) SendLinkDown(neigh state.Addr) {
	r.net.queue = append(r.net.queue, netPacket{from: r.self, to: neigh, kind: "ld"})
}

func (r *netRouter) SendCostChange(neigh state.Addr, cost state.Cost) {
	r.net.queue = append(r.net.queue, netPacket{from: r.self, to: neigh, kind: "c", cost: cost})
}

func (r *netRouter) SendFileSegment(neigh state.Addr, seg *protocol.FileSegment) {}

func (r *netRouter) Log(event RouterEvent, desc string, args ...any) {}

func NewNetwork() *Network {
	return &Network{Routers: make(map[state.Addr]*state.RouterState)}
}

func (n *Network) Add(rs *state.RouterState) {
	n.Routers[rs.Id] = rs
}

func (n *Network) Router(id state.Addr) Router {
	return &netRouter{net: n, self: id}
}

// Send queues a packet as if from had sent it, whatever from's own state is.
func (n *Network) Send(from, to state.Addr, kind string, cost state.Cost) {
	n.queue = append(n.queue, netPacket{from: from, to: to, kind: kind, cost: cost})
}

// Run delivers queued packets until the network is quiet, returning the number delivered.
func (n *Network) Run(t *testing.T) int {
	t.Helper()
	delivered := 0
	for len(n.queue) > 0 {
		p := n.queue[0]
		n.queue = n.queue[1:]
		rs, ok := n.Routers[p.to]
		if !ok {
			continue
		}
		r := n.Router(p.to)
		switch p.kind {
		case "ru":
			HandleRouteUpdate(rs, r, p.from, p.vec)
		case "lu":
			PeerLinkUp(rs, r, p.from)
		case "ld":
			_ = LinkDown(rs, r, p.from, false)
		case "c":
			_ = ChangeCost(rs, r, p.from, p.cost, false)
		}
		delivered++
		if delivered > 10000 {
			t.Fatal("network did not converge")
		}
	}
	return delivered
}

// BroadcastAll runs one periodic broadcast round on every router.
func (n *Network) BroadcastAll() {
	for _, id := range slices.Sorted(maps.Keys(n.Routers)) {
		Broadcast(n.Routers[id], n.Router(id))
	}
}
