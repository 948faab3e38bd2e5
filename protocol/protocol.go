// Package protocol implements the text wire format exchanged between hosts.
//
// Every datagram is ASCII with space separated fields, the first of which
// names the message type:
//
//	ru <source> <dest,cost,nexthop> ...   distance vector
//	lu <sender>                           link up
//	ld <sender>                           link down
//	c  <sender> <cost>                    link cost change
//	f  <dest> <source> <name> <seq> [data] file segment, no data marks EOF
package protocol

import (
	"errors"

	"github.com/encodeous/bfroute/state"
)

type Kind string

const (
	KindRouteUpdate Kind = "ru"
	KindLinkUp      Kind = "lu"
	KindLinkDown    Kind = "ld"
	KindCostChange  Kind = "c"
	KindFile        Kind = "f"
)

var ErrMalformed = errors.New("malformed packet")

type Message interface {
	Kind() Kind
	// Sender is the host the message is attributed to.
	Sender() state.Addr
}

// VectorEntry is one advertised (destination, cost, next hop) triple.
type VectorEntry struct {
	Dest state.Addr
	Cost state.Cost
	Nh   state.Addr
}

type RouteUpdate struct {
	Source  state.Addr
	Entries []VectorEntry
}

func (m *RouteUpdate) Kind() Kind         { return KindRouteUpdate }
func (m *RouteUpdate) Sender() state.Addr { return m.Source }

type LinkUp struct {
	From state.Addr
}

func (m *LinkUp) Kind() Kind         { return KindLinkUp }
func (m *LinkUp) Sender() state.Addr { return m.From }

type LinkDown struct {
	From state.Addr
}

func (m *LinkDown) Kind() Kind         { return KindLinkDown }
func (m *LinkDown) Sender() state.Addr { return m.From }

type CostChange struct {
	From state.Addr
	Cost state.Cost
}

func (m *CostChange) Kind() Kind         { return KindCostChange }
func (m *CostChange) Sender() state.Addr { return m.From }

// FileSegment carries one chunk of a file. A segment without data is the EOF
// marker, and its Seq is the number of data segments in the file.
type FileSegment struct {
	Dst  state.Addr
	Src  state.Addr
	Name string
	Seq  int
	Data []byte
	EOF  bool

	raw []byte
}

func (m *FileSegment) Kind() Kind         { return KindFile }
func (m *FileSegment) Sender() state.Addr { return m.Src }

// Header is the fixed prefix shared by every segment of one transfer.
func (m *FileSegment) Header() string {
	return FileHeader(m.Dst, m.Src, m.Name)
}

func FileHeader(dst, src state.Addr, name string) string {
	return string(KindFile) + " " + string(dst) + " " + string(src) + " " + name
}
