package core

import (
	"fmt"
	"time"

	"github.com/encodeous/bfroute/state"
)

// LinkUp restores the link to addr at the request of the local operator.
func LinkUp(rs *state.RouterState, r Router, addr state.Addr) error {
	n := rs.GetNeighbour(addr)
	if n == nil {
		return fmt.Errorf("link up %s: %w", addr, state.ErrUnknownNeighbour)
	}
	if n.Active {
		return nil
	}
	// sent before activation, the peer has no reason to talk to us otherwise
	r.SendLinkUp(addr)
	linkUp(rs, r, n)
	return nil
}

// PeerLinkUp handles a link up notification sent by addr.
func PeerLinkUp(rs *state.RouterState, r Router, addr state.Addr) {
	n := rs.GetNeighbour(addr)
	if n == nil {
		r.Log(UnknownSender, "link up from unknown host", "from", addr)
		return
	}
	if n.Active {
		n.Touch(time.Now())
		return
	}
	linkUp(rs, r, n)
}

func linkUp(rs *state.RouterState, r Router, n *state.Neighbour) {
	n.Activate(time.Now())
	r.Log(NeighbourUp, "link up", "neigh", n.Id)
	cur, _, _ := rs.Routes.Lookup(n.Id)
	if n.DirectCost < cur {
		rs.Routes.SetRoute(n.Id, n.DirectCost, n.Id)
		r.Log(RouteImproved, "route restored over direct link", "dest", n.Id, "cost", n.DirectCost)
		Broadcast(rs, r)
	}
}

// LinkDown takes the link to addr down. When local is set the peer is told
// first; otherwise the request came from the peer or from the liveness check.
func LinkDown(rs *state.RouterState, r Router, addr state.Addr, local bool) error {
	n := rs.GetNeighbour(addr)
	if n == nil {
		if local {
			return fmt.Errorf("link down %s: %w", addr, state.ErrUnknownNeighbour)
		}
		r.Log(UnknownSender, "link down from unknown host", "from", addr)
		return nil
	}
	if !n.Active {
		return nil
	}
	if local && rs.CanSend(addr) {
		r.SendLinkDown(addr)
	}
	n.Deactivate(time.Now())
	r.Log(NeighbourDown, "link down", "neigh", addr, "local", local)

	changed := rs.Routes.PoisonRoutesVia(addr)
	if changed {
		r.Log(RouteRetracted, "poisoned routes via neighbour", "neigh", addr)
	}
	if rs.Routes.ReconcileWithNeighbours(rs.Neighbours) {
		changed = true
	}
	if changed {
		Broadcast(rs, r)
	}
	return nil
}

// ChangeCost sets the direct cost of the link to addr and shifts every route
// through it by the difference.
func ChangeCost(rs *state.RouterState, r Router, addr state.Addr, cost state.Cost, local bool) error {
	n := rs.GetNeighbour(addr)
	if n == nil {
		if local {
			return fmt.Errorf("change cost %s: %w", addr, state.ErrUnknownNeighbour)
		}
		r.Log(UnknownSender, "cost change from unknown host", "from", addr)
		return nil
	}
	if !n.Active {
		if local {
			return fmt.Errorf("change cost %s: %w", addr, state.ErrLinkInactive)
		}
		return nil
	}
	now := time.Now()
	if local {
		if rs.CanSend(addr) {
			r.SendCostChange(addr, cost)
		}
	} else {
		n.Touch(now)
	}

	old := n.DirectCost
	n.DirectCost = cost
	r.Log(RouteCostChanged, "link cost changed", "neigh", addr, "old", old, "new", cost)

	changed := false
	switch {
	case cost.IsInf():
		changed = rs.Routes.PoisonRoutesVia(addr)
	case old.IsInf():
		// nothing finite to shift, reconcile picks up the direct route
	default:
		changed = rs.Routes.AdjustRoutesVia(addr, float64(cost-old))
	}
	if rs.Routes.ReconcileWithNeighbours(rs.Neighbours) {
		changed = true
	}
	if changed {
		Broadcast(rs, r)
	}
	return nil
}
