package state

import (
	"fmt"
	"time"
)

// Neighbour tracks the liveness of a directly connected host.
//
// Neighbours are created from configuration, or on the first route update
// received from an unknown sender. They are never removed, only deactivated.
type Neighbour struct {
	Id          Addr
	DirectCost  Cost
	LastContact time.Time
	Active      bool
}

func NewNeighbour(id Addr, cost Cost, now time.Time) *Neighbour {
	return &Neighbour{
		Id:          id,
		DirectCost:  cost,
		LastContact: now,
		Active:      true,
	}
}

// Touch refreshes the last contact time without changing the link state.
func (n *Neighbour) Touch(now time.Time) {
	n.LastContact = now
}

// Activate marks the link up and refreshes the last contact. It returns true if
// the neighbour was previously inactive.
func (n *Neighbour) Activate(now time.Time) bool {
	was := n.Active
	n.Active = true
	n.LastContact = now
	return !was
}

// Deactivate marks the link down and refreshes the last contact. It returns
// true if the neighbour was previously active.
func (n *Neighbour) Deactivate(now time.Time) bool {
	was := n.Active
	n.Active = false
	n.LastContact = now
	return was
}

// Expired reports whether an active neighbour has been silent for longer than limit.
func (n *Neighbour) Expired(now time.Time, limit time.Duration) bool {
	return n.Active && now.Sub(n.LastContact) > limit
}

func (n *Neighbour) String() string {
	st := "down"
	if n.Active {
		st = "up"
	}
	return fmt.Sprintf("%s (cost: %s, %s)", n.Id, n.DirectCost, st)
}
