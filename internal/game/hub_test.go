package game

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewHub(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	if h.clients == nil || h.broadcast == nil || h.register == nil || h.unregister == nil {
		t.Fatal("NewHub returned a hub with nil internals")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())

	// Nothing drains the channel here; once it fills, further broadcasts
	// must drop rather than stall the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(h.broadcast)+10; i++ {
			h.Broadcast(Event{Type: EventTick, Data: MultiplierTick{Multiplier: 1.5}})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full channel")
	}

	if len(h.broadcast) != cap(h.broadcast) {
		t.Errorf("buffered %d events, want full channel of %d", len(h.broadcast), cap(h.broadcast))
	}
}

func TestClient_FramesKeepEnqueueOrder(t *testing.T) {
	c := &Client{send: make(chan []byte, clientSendBuffer), done: make(chan struct{})}

	for i := 0; i < 3; i++ {
		if err := c.Send(Event{Type: EventTick, Data: MultiplierTick{ElapsedMs: int64(i)}}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	// The queue is the only path to the socket, so queue order is frame
	// order.
	for i := 0; i < 3; i++ {
		var frame struct {
			Data struct {
				ElapsedMs int64 `json:"elapsed_ms"`
			} `json:"data"`
		}
		if err := json.Unmarshal(<-c.send, &frame); err != nil {
			t.Fatalf("bad frame %d: %v", i, err)
		}
		if frame.Data.ElapsedMs != int64(i) {
			t.Errorf("frame %d carries elapsed %d, out of order", i, frame.Data.ElapsedMs)
		}
	}
}

func TestClient_FullQueueDropsNewFrames(t *testing.T) {
	c := &Client{send: make(chan []byte, 2), done: make(chan struct{})}

	if err := c.Send(Event{Type: EventTick}); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := c.Send(Event{Type: EventTick}); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}
	if err := c.Send(Event{Type: EventTick}); err == nil {
		t.Fatal("Send on a full queue did not report the drop")
	}
}

func TestHub_RegisterTracksClients(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	go h.Run()

	c := &Client{userID: "alice"}
	h.register <- c
	if got := c.UserID(); got != "alice" {
		t.Errorf("UserID = %q, want alice", got)
	}

	deadline := time.After(2 * time.Second)
	for h.ClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatalf("ClientCount = %d, want 1", h.ClientCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
