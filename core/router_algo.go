package core

import (
	"time"

	"github.com/encodeous/bfroute/protocol"
	"github.com/encodeous/bfroute/state"
)

type RouterEvent int

// trace events

const (
	RouteImproved RouterEvent = iota
	RouteRetracted
	RouteAdded
	RouteCostChanged
	NeighbourDiscovered
	NeighbourUp
	NeighbourDown
	VectorBroadcast
	SegmentForwarded
	SegmentDropped
	SegmentStored
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	UnknownSender
)

var routerEventNames = map[RouterEvent]string{
	RouteImproved:       "ROUTE_IMPROVED",
	RouteRetracted:      "ROUTE_RETRACTED",
	RouteAdded:          "ROUTE_ADDED",
	RouteCostChanged:    "ROUTE_COST_CHANGED",
	NeighbourDiscovered: "NEIGHBOUR_DISCOVERED",
	NeighbourUp:         "NEIGHBOUR_UP",
	NeighbourDown:       "NEIGHBOUR_DOWN",
	VectorBroadcast:     "VECTOR_BROADCAST",
	SegmentForwarded:    "SEGMENT_FORWARDED",
	SegmentDropped:      "SEGMENT_DROPPED",
	SegmentStored:       "SEGMENT_STORED",
	InconsistentState:   "INCONSISTENT_STATE",
	UnknownSender:       "UNKNOWN_SENDER",
}

func (e RouterEvent) String() string {
	if name, ok := routerEventNames[e]; ok {
		return name
	}
	return "UNKNOWN_EVENT"
}

// Router is an interface that defines the underlying router operations
type Router interface {
	SendRouteUpdate(neigh state.Addr, vec []protocol.VectorEntry)
	SendLinkUp(neigh state.Addr)
	SendLinkDown(neigh state.Addr)
	SendCostChange(neigh state.Addr, cost state.Cost)
	SendFileSegment(neigh state.Addr, seg *protocol.FileSegment)
	Log(event RouterEvent, desc string, args ...any)
}

// BuildVector computes the distance vector advertised to neighbour to.
//
// Poison reverse: a destination reached through to is advertised as INF,
// except to's own entry, which always carries the real cost of the link.
func BuildVector(rs *state.RouterState, to state.Addr) []protocol.VectorEntry {
	vec := make([]protocol.VectorEntry, 0, len(rs.Routes))
	for _, dest := range rs.Routes.Destinations() {
		route := rs.Routes[dest]
		cost := route.Cost
		if route.Nh == to && dest != to {
			cost = state.INF
		}
		vec = append(vec, protocol.VectorEntry{
			Dest: dest,
			Cost: cost,
			Nh:   route.Nh,
		})
	}
	return vec
}

// Broadcast sends every reachable active neighbour its own poisoned view of the table.
func Broadcast(rs *state.RouterState, r Router) {
	for _, neigh := range rs.Neighbours {
		if !rs.CanSend(neigh.Id) {
			continue
		}
		r.SendRouteUpdate(neigh.Id, BuildVector(rs, neigh.Id))
	}
	rs.LastBroadcast = time.Now()
	r.Log(VectorBroadcast, "broadcast distance vector", "routes", len(rs.Routes))
}

// HandleRouteUpdate applies a distance vector received from source.
func HandleRouteUpdate(rs *state.RouterState, r Router, source state.Addr, entries []protocol.VectorEntry) {
	now := time.Now()
	changed := false

	// 1. the sender is alive
	n, created := rs.EnsureNeighbour(source, now)
	if created {
		r.Log(NeighbourDiscovered, "discovered neighbour", "neigh", source)
	}
	if n.Activate(now) {
		r.Log(NeighbourUp, "neighbour active", "neigh", source)
	}

	// 2. learn the cost of the link from the sender's entry for us
	for _, e := range entries {
		if e.Dest != rs.Id {
			continue
		}
		if route, ok := rs.Routes[source]; ok {
			if e.Nh == rs.Id && route.Nh == source {
				if route.Cost != e.Cost {
					changed = true
					r.Log(RouteCostChanged, "link cost learned from peer", "neigh", source, "cost", e.Cost)
				}
				rs.Routes.SetRoute(source, e.Cost, source)
				n.DirectCost = e.Cost
			}
		} else {
			rs.Routes.SetRoute(source, e.Cost, source)
			n.DirectCost = e.Cost
			changed = true
			r.Log(RouteAdded, "route to new neighbour", "neigh", source, "cost", e.Cost)
		}
	}

	// 3. the sender must be routable before anything it says can be used
	baseCost, viaLink, ok := rs.Routes.Lookup(source)
	if !ok {
		r.Log(InconsistentState, "route update from neighbour without a route", "neigh", source)
		return
	}

	// 4. Bellman-Ford relaxation
	for _, e := range entries {
		if e.Dest == rs.Id || e.Nh == rs.Id {
			continue // would route back through us
		}
		candidate := baseCost + e.Cost
		cur, exists := rs.Routes[e.Dest]
		switch {
		case exists && cur.Nh == source:
			// trust the neighbour we route through, even if its cost went up
			if cur.Cost != candidate {
				if candidate.IsInf() {
					r.Log(RouteRetracted, "route retracted", "dest", e.Dest, "via", source)
				} else {
					r.Log(RouteCostChanged, "route cost changed", "dest", e.Dest, "via", source, "cost", candidate)
				}
				cur.Cost = candidate
				rs.Routes[e.Dest] = cur
				changed = true
			}
		case exists && candidate < cur.Cost:
			rs.Routes.SetRoute(e.Dest, candidate, viaLink)
			changed = true
			r.Log(RouteImproved, "route improved", "dest", e.Dest, "via", viaLink, "cost", candidate)
		case !exists:
			rs.Routes.SetRoute(e.Dest, candidate, viaLink)
			changed = true
			r.Log(RouteAdded, "route added", "dest", e.Dest, "via", viaLink, "cost", candidate)
		}
	}

	// 5. a direct link may now beat what we just learned
	if rs.Routes.ReconcileWithNeighbours(rs.Neighbours) {
		changed = true
	}

	// 6. triggered update
	if changed {
		Broadcast(rs, r)
	}
}

// Tick runs the periodic broadcast and the liveness check.
func Tick(rs *state.RouterState, r Router) {
	now := time.Now()
	if now.Sub(rs.LastBroadcast) >= rs.UpdateInterval {
		Broadcast(rs, r)
	}
	limit := rs.LivenessLimit()
	for _, n := range rs.Neighbours {
		if n.Expired(now, limit) {
			r.Log(NeighbourDown, "neighbour timed out", "neigh", n.Id, "silence", now.Sub(n.LastContact))
			_ = LinkDown(rs, r, n.Id, false)
		}
	}
}
