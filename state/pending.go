package state

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// PendingKey identifies a file being reassembled. Keying on the source as well
// as the name keeps two senders of the same filename apart.
type PendingKey struct {
	Source Addr
	Name   string
}

// PendingFile holds the segments received so far for one incoming file.
type PendingFile struct {
	Segments map[int][]byte
	Total    int
	HasTotal bool
}

func (p *PendingFile) Put(seq int, data []byte) {
	p.Segments[seq] = data
}

// MarkEOF records the segment count carried by the EOF marker.
func (p *PendingFile) MarkEOF(total int) {
	p.Total = total
	p.HasTotal = true
}

// Complete is true once the total is known and every segment 0..Total-1 is present.
func (p *PendingFile) Complete() bool {
	if !p.HasTotal || len(p.Segments) < p.Total {
		return false
	}
	for i := 0; i < p.Total; i++ {
		if _, ok := p.Segments[i]; !ok {
			return false
		}
	}
	return true
}

// Assemble concatenates segments in increasing sequence order.
func (p *PendingFile) Assemble() []byte {
	seqs := make([]int, 0, len(p.Segments))
	for seq := range p.Segments {
		if seq < p.Total {
			seqs = append(seqs, seq)
		}
	}
	slices.Sort(seqs)
	var buf bytes.Buffer
	for _, seq := range seqs {
		buf.Write(p.Segments[seq])
	}
	return buf.Bytes()
}

// CompletedFile is a fully reassembled transfer ready to be written out.
type CompletedFile struct {
	PendingKey
	Data []byte
}

// PendingFiles is the receive-side reassembly store. Entries expire after ttl
// without a new segment; expiry is only applied when Expire is called, so all
// mutation stays on the dispatch goroutine.
type PendingFiles struct {
	cache *ttlcache.Cache[PendingKey, *PendingFile]
}

func NewPendingFiles(ttl time.Duration, onExpire func(key PendingKey, f *PendingFile)) *PendingFiles {
	cache := ttlcache.New[PendingKey, *PendingFile](
		ttlcache.WithTTL[PendingKey, *PendingFile](ttl),
	)
	if onExpire != nil {
		cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[PendingKey, *PendingFile]) {
			if reason == ttlcache.EvictionReasonExpired {
				onExpire(item.Key(), item.Value())
			}
		})
	}
	return &PendingFiles{cache: cache}
}

// Get returns the pending file for key, creating it if absent. Every call
// resets the inactivity timer.
func (p *PendingFiles) Get(key PendingKey) *PendingFile {
	if item := p.cache.Get(key); item != nil {
		return item.Value()
	}
	f := &PendingFile{Segments: make(map[int][]byte)}
	p.cache.Set(key, f, ttlcache.DefaultTTL)
	return f
}

func (p *PendingFiles) Has(key PendingKey) bool {
	return p.cache.Has(key)
}

func (p *PendingFiles) Remove(key PendingKey) {
	p.cache.Delete(key)
}

func (p *PendingFiles) Len() int {
	return p.cache.Len()
}

func (p *PendingFiles) Keys() []PendingKey {
	return p.cache.Keys()
}

// Expire drops stalled transfers.
func (p *PendingFiles) Expire() {
	p.cache.DeleteExpired()
}
