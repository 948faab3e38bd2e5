package state

import "time"

const (
	// MSS is the largest datagram a host sends or expects to receive.
	MSS = 4096
	// SeqPadding reserves room in a file segment for the decimal sequence number
	// and its separators.
	SeqPadding = 20
	// LivenessMultiplier times the update interval is how long a neighbour may
	// stay silent before it is deactivated.
	LivenessMultiplier = 3
)

var (
	DispatchBacklog  = 128
	RecvBatchSize    = 8
	MinTickDelay     = time.Millisecond * 10
	MaxTickDelay     = time.Second
	GcDelay          = time.Second * 5
	MinPendingTTL    = time.Second * 30
	PendingTTLFactor = 30
	SlowDispatch     = time.Millisecond * 4

	DefaultRecvDir = "."
)
