package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingFileComplete(t *testing.T) {
	p := &PendingFile{Segments: make(map[int][]byte)}
	assert.False(t, p.Complete())

	p.Put(1, []byte("world"))
	p.MarkEOF(3)
	assert.False(t, p.Complete())
	p.Put(0, []byte("hello "))
	assert.False(t, p.Complete())
	p.Put(2, []byte("!"))
	assert.True(t, p.Complete())
	assert.Equal(t, "hello world!", string(p.Assemble()))
}

func TestPendingFileEmpty(t *testing.T) {
	p := &PendingFile{Segments: make(map[int][]byte)}
	p.MarkEOF(0)
	assert.True(t, p.Complete())
	assert.Empty(t, p.Assemble())
}

func TestPendingFileDuplicateSegment(t *testing.T) {
	p := &PendingFile{Segments: make(map[int][]byte)}
	p.Put(0, []byte("a"))
	p.Put(0, []byte("a"))
	p.MarkEOF(2)
	assert.False(t, p.Complete())
	p.Put(1, []byte("b"))
	assert.True(t, p.Complete())
	assert.Equal(t, "ab", string(p.Assemble()))
}

func TestPendingFilesKeying(t *testing.T) {
	files := NewPendingFiles(time.Minute, nil)
	a := files.Get(PendingKey{Source: addrA, Name: "notes.txt"})
	b := files.Get(PendingKey{Source: addrB, Name: "notes.txt"})
	assert.NotSame(t, a, b)
	assert.Same(t, a, files.Get(PendingKey{Source: addrA, Name: "notes.txt"}))
	assert.Equal(t, 2, files.Len())
	assert.ElementsMatch(t, []PendingKey{
		{Source: addrA, Name: "notes.txt"},
		{Source: addrB, Name: "notes.txt"},
	}, files.Keys())

	files.Remove(PendingKey{Source: addrA, Name: "notes.txt"})
	assert.False(t, files.Has(PendingKey{Source: addrA, Name: "notes.txt"}))
	assert.Equal(t, 1, files.Len())
}

func TestPendingFilesExpire(t *testing.T) {
	expired := make(chan PendingKey, 1)
	files := NewPendingFiles(100*time.Millisecond, func(key PendingKey, f *PendingFile) {
		expired <- key
	})
	key := PendingKey{Source: addrA, Name: "notes.txt"}
	files.Get(key).Put(0, []byte("partial"))

	files.Expire()
	assert.Equal(t, 1, files.Len(), "not yet stale")

	time.Sleep(200 * time.Millisecond)
	files.Expire()
	assert.Equal(t, 0, files.Len())
	select {
	case got := <-expired:
		assert.Equal(t, key, got)
	case <-time.After(time.Second):
		t.Fatal("expiry callback was not called")
	}

	fresh := files.Get(key)
	require.NotNil(t, fresh)
	assert.Empty(t, fresh.Segments)
}
