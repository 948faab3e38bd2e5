//go:build integration

package integration

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/encodeous/bfroute/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	rng := rand.New(rand.NewPCG(uint64(size), 1))
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func TestFileRouting(t *testing.T) {
	vh := NewHarness(0.1)
	vh.NewNode(A)
	vh.NewNode(B)
	vh.NewNode(C)
	// jitter reorders segments on the way
	vh.AddLink(A, B, 1).WithLatency(time.Millisecond, 3*time.Millisecond)
	vh.AddLink(B, C, 1).WithLatency(time.Millisecond, 3*time.Millisecond)
	vh.Start(t)
	vh.WaitForRoutes(t, A, state.RoutingTable{C: {Cost: 2, Nh: B}}, 5*time.Second)

	path, data := writeFile(t, "photo.bin", 50_000)
	out, err := vh.Exec(A, "TRANSFER "+path+" 10.0.0.3 4000")
	require.NoError(t, err)
	assert.Contains(t, out, "in 13 segments")

	select {
	case f := <-vh.Nodes[C].Files:
		assert.Equal(t, "photo.bin", f.Name)
		assert.Equal(t, A, f.Source)
		assert.True(t, bytes.Equal(data, f.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("file did not arrive")
	}
	assert.Empty(t, vh.Nodes[B].Files, "relay must not keep a copy")
}

func TestFileRoutingBothWays(t *testing.T) {
	vh := NewHarness(0.1)
	vh.NewNode(A)
	vh.NewNode(B)
	vh.NewNode(C)
	vh.AddLink(A, B, 1)
	vh.AddLink(B, C, 1)
	vh.Start(t)
	vh.WaitForRoutes(t, A, state.RoutingTable{C: {Cost: 2, Nh: B}}, 5*time.Second)
	vh.WaitForRoutes(t, C, state.RoutingTable{A: {Cost: 2, Nh: B}}, 5*time.Second)

	// same name from both ends, reassembled independently
	pathA, dataA := writeFile(t, "notes.txt", 9000)
	pathC, dataC := writeFile(t, "notes.txt", 100)
	_, err := vh.Exec(A, "TRANSFER "+pathA+" 10.0.0.3 4000")
	require.NoError(t, err)
	_, err = vh.Exec(C, "TRANSFER "+pathC+" 10.0.0.1 4000")
	require.NoError(t, err)

	for _, want := range []struct {
		at   state.Addr
		data []byte
	}{{C, dataA}, {A, dataC}} {
		select {
		case f := <-vh.Nodes[want.at].Files:
			assert.True(t, bytes.Equal(want.data, f.Data))
		case <-time.After(5 * time.Second):
			t.Fatalf("file did not arrive at %s", want.at)
		}
	}
}

func TestTransferToUnreachable(t *testing.T) {
	vh := NewHarness(0.1)
	vh.NewNode(A)
	vh.NewNode(B)
	vh.AddLink(A, B, 1)
	vh.Start(t)

	path, _ := writeFile(t, "notes.txt", 10)
	_, err := vh.Exec(A, "TRANSFER "+path+" 10.0.0.4 4000")
	assert.ErrorIs(t, err, state.ErrUnreachable)

	_, err = vh.Exec(A, "LINKDOWN 10.0.0.2 4000")
	require.NoError(t, err)
	_, err = vh.Exec(A, "TRANSFER "+path+" 10.0.0.2 4000")
	assert.ErrorIs(t, err, state.ErrUnreachable)
	assert.Empty(t, vh.Nodes[B].Files)
}
