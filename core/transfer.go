package core

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/encodeous/bfroute/perf"
	"github.com/encodeous/bfroute/protocol"
	"github.com/encodeous/bfroute/state"
)

// DataSize is the payload carried by one segment with the given header.
func DataSize(header string) int {
	return state.MSS - len(header) - state.SeqPadding
}

// Segments splits r into data segments numbered from 0, followed by an EOF
// segment whose sequence number is the count of data segments.
func Segments(dst, src state.Addr, name string, r io.Reader) iter.Seq2[*protocol.FileSegment, error] {
	return func(yield func(*protocol.FileSegment, error) bool) {
		size := DataSize(protocol.FileHeader(dst, src, name))
		if size <= 0 {
			yield(nil, fmt.Errorf("header for %s leaves no room for data", name))
			return
		}
		seq := 0
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				seg := &protocol.FileSegment{Dst: dst, Src: src, Name: name, Seq: seq, Data: buf[:n]}
				if !yield(seg, nil) {
					return
				}
				seq++
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
		yield(&protocol.FileSegment{Dst: dst, Src: src, Name: name, Seq: seq, EOF: true}, nil)
	}
}

// SendSegment hands seg to the current next hop towards its destination.
func SendSegment(rs *state.RouterState, r Router, seg *protocol.FileSegment) error {
	cost, nh, ok := rs.Routes.Lookup(seg.Dst)
	if !ok || cost.IsInf() {
		return fmt.Errorf("%s: %w", seg.Dst, state.ErrUnreachable)
	}
	if !rs.CanSend(nh) {
		return fmt.Errorf("next hop %s: %w", nh, state.ErrLinkInactive)
	}
	r.SendFileSegment(nh, seg)
	return nil
}

// HandleFileSegment stores a segment addressed to us, or forwards it towards
// its destination. A file is returned once every one of its segments has arrived.
func HandleFileSegment(rs *state.RouterState, r Router, inbox *state.PendingFiles, seg *protocol.FileSegment) (*state.CompletedFile, error) {
	if seg.Dst != rs.Id {
		if err := SendSegment(rs, r, seg); err != nil {
			r.Log(SegmentDropped, "dropped segment", "dst", seg.Dst, "name", seg.Name, "seq", seg.Seq, "err", err)
			return nil, err
		}
		r.Log(SegmentForwarded, "forwarded segment", "dst", seg.Dst, "name", seg.Name, "seq", seg.Seq)
		return nil, nil
	}

	key := state.PendingKey{Source: seg.Src, Name: seg.Name}
	p := inbox.Get(key)
	if seg.EOF {
		p.MarkEOF(seg.Seq)
	} else {
		p.Put(seg.Seq, seg.Data)
	}
	r.Log(SegmentStored, "stored segment", "src", seg.Src, "name", seg.Name, "seq", seg.Seq, "eof", seg.EOF)
	if !p.Complete() {
		return nil, nil
	}
	inbox.Remove(key)
	return &state.CompletedFile{PendingKey: key, Data: p.Assemble()}, nil
}

// wireName is the name a local file travels under. Only the base name is sent.
func wireName(path string) (string, error) {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", &state.TransferError{Op: "open", Name: path, Err: errors.New("not a file name")}
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return "", &state.TransferError{Op: "open", Name: path, Err: errors.New("file name must not contain whitespace")}
	}
	return name, nil
}

// Transfer sends the file at path to dst. It blocks the calling goroutine
// until every segment has been handed to the next hop, and returns the number
// of data segments sent. The next hop is resolved again for every segment.
func Transfer(e *state.Env, path string, dst state.Addr) (int, error) {
	name, err := wireName(path)
	if err != nil {
		return 0, err
	}
	_, err = e.DispatchWait(func(s *state.State) (any, error) {
		if !s.Routes.Reachable(dst) {
			return nil, fmt.Errorf("transfer to %s: %w", dst, state.ErrUnreachable)
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, &state.TransferError{Op: "open", Name: path, Err: err}
	}
	defer f.Close()

	sent := 0
	for seg, err := range Segments(dst, e.Self, name, f) {
		if err != nil {
			return sent, &state.TransferError{Op: "read", Name: path, Err: err}
		}
		_, err = e.DispatchWait(func(s *state.State) (any, error) {
			return nil, SendSegment(s.RouterState, Get[*HostRouter](s), seg)
		})
		if err != nil {
			return sent, fmt.Errorf("transfer %s failed at segment %d: %w", name, seg.Seq, err)
		}
		e.Log.Debug("sent segment", "name", name, "seq", seg.Seq, "eof", seg.EOF)
		if !seg.EOF {
			sent++
		}
	}
	return sent, nil
}

// DiskSink writes received files into dir, under the base name they were sent with.
func DiskSink(dir string) state.FileSink {
	return func(f *state.CompletedFile) error {
		name := filepath.Base(f.Name)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			return &state.TransferError{Op: "write", Name: f.Name, Err: errors.New("invalid file name")}
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &state.TransferError{Op: "write", Name: f.Name, Err: err}
		}
		if err := os.WriteFile(filepath.Join(dir, name), f.Data, 0644); err != nil {
			return &state.TransferError{Op: "write", Name: f.Name, Err: err}
		}
		return nil
	}
}

// Transfers owns the reassembly store for files addressed to this host.
type Transfers struct {
	*state.State
	Inbox  *state.PendingFiles
	saving sync.WaitGroup
}

func (t *Transfers) Init(s *state.State) error {
	t.State = s
	ttl := s.PendingExpiry()
	t.Inbox = state.NewPendingFiles(ttl, func(key state.PendingKey, f *state.PendingFile) {
		s.Log.Warn("abandoned incomplete file", "src", key.Source, "name", key.Name, "segments", len(f.Segments))
	})
	s.Log.Debug("transfer inbox ready", "ttl", ttl)
	s.Env.RepeatTask(func(s *state.State) error {
		t.Inbox.Expire()
		return nil
	}, state.GcDelay)
	return nil
}

func (t *Transfers) Cleanup(s *state.State) error {
	// files already handed to the sink are written out before the host exits
	t.saving.Wait()
	t.Inbox = nil
	return nil
}

// Receive runs a segment through the transfer engine. It never fails the
// dispatch loop; a dropped segment is only counted.
func (t *Transfers) Receive(s *state.State, seg *protocol.FileSegment) error {
	done, err := HandleFileSegment(s.RouterState, Get[*HostRouter](s), t.Inbox, seg)
	if err != nil {
		perf.SegmentsDropped.Add(1)
		return nil
	}
	if done == nil {
		return nil
	}
	sink := s.Sink
	log := s.Log
	t.saving.Go(func() {
		if err := sink(done); err != nil {
			log.Error("failed to save file", "name", done.Name, "src", done.Source, "error", err)
			return
		}
		log.Info("received file", "name", done.Name, "src", done.Source, "bytes", len(done.Data))
	})
	return nil
}
