package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	*RouterState
	Modules map[string]NyModule
}

// FileSink persists a reassembled file. It is called outside the dispatch goroutine.
type FileSink func(f *CompletedFile) error

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan func(s *State) error
	LocalCfg
	Self     Addr
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Sink     FileSink
	Started  atomic.Bool
	Stopping atomic.Bool
}
