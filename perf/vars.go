package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	RecvBatchSize       = metric.NewHistogram("10s1s")
	SentPacketPerSecond = metric.NewCounter("10s1s")
	RecvPacketPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	MalformedPackets    = metric.NewCounter("1m10s")
	RouteUpdates        = metric.NewCounter("1m10s")
	SegmentsSent        = metric.NewCounter("10s1s")
	SegmentsDropped     = metric.NewCounter("1m10s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("bfroute:RecvBatchSize", RecvBatchSize)

	expvar.Publish("bfroute:SentPacket/s", SentPacketPerSecond)
	expvar.Publish("bfroute:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("bfroute:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("bfroute:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("bfroute:MalformedPackets", MalformedPackets)
	expvar.Publish("bfroute:RouteUpdates", RouteUpdates)
	expvar.Publish("bfroute:SegmentsSent/s", SegmentsSent)
	expvar.Publish("bfroute:SegmentsDropped", SegmentsDropped)
	expvar.Publish("bfroute:DispatchLatency (µs)", DispatchLatency)
}
