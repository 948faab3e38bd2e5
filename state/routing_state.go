package state

import (
	"slices"
	"time"
)

// RouterState is the routing state of this host. It must only be accessed from
// the dispatch goroutine.
type RouterState struct {
	Id             Addr
	Routes         RoutingTable
	Neighbours     []*Neighbour
	LastBroadcast  time.Time
	UpdateInterval time.Duration
}

// NewRouterState seeds the table with one direct route per configured neighbour.
func NewRouterState(id Addr, interval time.Duration, neighs []NeighbourCfg) *RouterState {
	now := time.Now()
	rs := &RouterState{
		Id:             id,
		Routes:         make(RoutingTable),
		Neighbours:     make([]*Neighbour, 0, len(neighs)),
		LastBroadcast:  now,
		UpdateInterval: interval,
	}
	for _, n := range neighs {
		rs.Neighbours = append(rs.Neighbours, NewNeighbour(n.Addr, n.Cost, now))
		rs.Routes.SetRoute(n.Addr, n.Cost, n.Addr)
	}
	return rs
}

func (s *RouterState) GetNeighbour(id Addr) *Neighbour {
	nIdx := slices.IndexFunc(s.Neighbours, func(neighbour *Neighbour) bool {
		return neighbour.Id == id
	})
	if nIdx == -1 {
		return nil
	}
	return s.Neighbours[nIdx]
}

// EnsureNeighbour returns the neighbour for id, creating an inactive one with
// an unknown (INF) direct cost if it has never been seen.
func (s *RouterState) EnsureNeighbour(id Addr, now time.Time) (*Neighbour, bool) {
	if n := s.GetNeighbour(id); n != nil {
		return n, false
	}
	n := &Neighbour{
		Id:          id,
		DirectCost:  INF,
		LastContact: now,
	}
	s.Neighbours = append(s.Neighbours, n)
	return n, true
}

// LivenessLimit is the silence after which an active neighbour is considered dead.
func (s *RouterState) LivenessLimit() time.Duration {
	return LivenessMultiplier * s.UpdateInterval
}

// CanSend reports whether a packet may be sent directly to neigh: it must be an
// active neighbour with a finite route.
func (s *RouterState) CanSend(neigh Addr) bool {
	n := s.GetNeighbour(neigh)
	if n == nil || !n.Active {
		return false
	}
	return s.Routes.Reachable(neigh)
}

func (s *RouterState) StringRoutes() string {
	return s.Routes.String()
}
