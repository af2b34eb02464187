package ws

import (
	"testing"

	"go.uber.org/zap"
)

func TestHubRegisterUnregisterTracksCount(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := &Client{send: make(chan Snapshot, 1), logger: zap.NewNop()}

	h.Register(c)
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", h.ClientCount())
	}

	h.Unregister(c)
	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", h.ClientCount())
	}
}

func TestHubBroadcastDropsOnFullBuffer(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := &Client{send: make(chan Snapshot, 1), logger: zap.NewNop()}
	h.Register(c)

	h.Broadcast(Snapshot{})
	h.Broadcast(Snapshot{}) // buffer full; should drop, not block

	if len(c.send) != 1 {
		t.Fatalf("buffered = %d, want 1", len(c.send))
	}
}
