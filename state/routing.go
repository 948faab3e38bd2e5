package state

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// Route is the selected path to a destination. Nh is always a direct neighbour.
type Route struct {
	Cost Cost
	Nh   Addr
}

func (r Route) String() string {
	return fmt.Sprintf("(nh: %s, cost: %s)", r.Nh, r.Cost)
}

// RoutingTable maps every known destination, including every neighbour, to its route.
type RoutingTable map[Addr]Route

func (t RoutingTable) Lookup(dest Addr) (Cost, Addr, bool) {
	r, ok := t[dest]
	if !ok {
		return INF, "", false
	}
	return r.Cost, r.Nh, true
}

// Reachable reports whether dest is known and has a finite cost.
func (t RoutingTable) Reachable(dest Addr) bool {
	cost, _, ok := t.Lookup(dest)
	return ok && !cost.IsInf()
}

func (t RoutingTable) SetRoute(dest Addr, cost Cost, nh Addr) {
	t[dest] = Route{Cost: cost, Nh: nh}
}

// PoisonRoutesVia sets every route through neigh to INF, returning true if a cost changed.
func (t RoutingTable) PoisonRoutesVia(neigh Addr) bool {
	changed := false
	for dest, r := range t {
		if r.Nh != neigh || r.Cost.IsInf() {
			continue
		}
		r.Cost = INF
		t[dest] = r
		changed = true
	}
	return changed
}

// AdjustRoutesVia shifts the cost of every route through neigh by delta.
// Non-finite deltas are refused; the caller poisons instead.
func (t RoutingTable) AdjustRoutesVia(neigh Addr, delta float64) bool {
	if delta == 0 || math.IsInf(delta, 0) || math.IsNaN(delta) {
		return false
	}
	changed := false
	for dest, r := range t {
		if r.Nh != neigh {
			continue
		}
		r.Cost += Cost(delta)
		t[dest] = r
		changed = true
	}
	return changed
}

// ReconcileWithNeighbours switches the route of every active neighbour whose
// direct cost beats its current route back onto the direct link.
func (t RoutingTable) ReconcileWithNeighbours(neighs []*Neighbour) bool {
	changed := false
	for _, n := range neighs {
		if !n.Active {
			continue
		}
		cur, _, _ := t.Lookup(n.Id)
		if n.DirectCost < cur {
			t.SetRoute(n.Id, n.DirectCost, n.Id)
			changed = true
		}
	}
	return changed
}

// Destinations returns the table keys in sorted order.
func (t RoutingTable) Destinations() []Addr {
	return slices.Sorted(maps.Keys(t))
}

func (t RoutingTable) String() string {
	sb := strings.Builder{}
	for i, dest := range t.Destinations() {
		if i != 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s via %s", dest, t[dest]))
	}
	return sb.String()
}
