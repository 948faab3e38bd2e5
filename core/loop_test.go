package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/encodeous/bfroute/protocol"
	"github.com/encodeous/bfroute/state"
	"github.com/stretchr/testify/require"
)

type sentPacket struct {
	To  state.Addr
	Msg protocol.Message
}

// recordingWriter captures every packet written by the router.
type recordingWriter struct {
	mu   sync.Mutex
	sent []sentPacket
}

func (w *recordingWriter) WriteTo(pkt []byte, to state.Addr) error {
	m, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, sentPacket{To: to, Msg: m})
	return nil
}

func (w *recordingWriter) Segments() []*protocol.FileSegment {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*protocol.FileSegment, 0)
	for _, p := range w.sent {
		if seg, ok := p.Msg.(*protocol.FileSegment); ok {
			out = append(out, seg)
		}
	}
	return out
}

type testHost struct {
	*state.State
	Out  *recordingWriter
	done chan struct{}
}

// startTestHost runs the router and transfer modules on a live dispatch loop,
// without a socket.
func startTestHost(t *testing.T, self state.Addr, sink state.FileSink, neighs ...state.NeighbourCfg) *testHost {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	dispatch := make(chan func(s *state.State) error, state.DispatchBacklog)
	cfg := state.LocalCfg{Port: self.Port(), Interval: 1, Neighbours: neighs}
	if sink == nil {
		sink = func(f *state.CompletedFile) error { return nil }
	}
	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			DispatchChannel: dispatch,
			LocalCfg:        cfg,
			Self:            self,
			Context:         ctx,
			Cancel:          cancel,
			Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
			Sink:            sink,
		},
		RouterState: state.NewRouterState(self, cfg.UpdateInterval(), neighs),
	}
	out := &recordingWriter{}
	modules := []state.NyModule{&HostRouter{Out: out}, &Transfers{}}
	for _, m := range modules {
		s.Modules[moduleName(m)] = m
		require.NoError(t, m.Init(s))
	}
	h := &testHost{State: s, Out: out, done: make(chan struct{})}
	go func() {
		MainLoop(s, dispatch)
		close(h.done)
	}()
	t.Cleanup(func() {
		s.Cancel(ErrShutdown)
		<-h.done
	})
	return h
}

// Do runs fun on the dispatch loop and waits for it.
func (h *testHost) Do(t *testing.T, fun func(s *state.State)) {
	t.Helper()
	_, err := h.DispatchWait(func(s *state.State) (any, error) {
		fun(s)
		return nil, nil
	})
	require.NoError(t, err)
}
