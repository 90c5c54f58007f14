package dispatcher

import (
	"context"
	"testing"
	"time"
)

func TestBroadcastReachesListeners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(ctx)
	a := d.NewListener()
	b := d.NewListener()

	d.BroadcastEvent("state", "hello")

	for _, l := range []*Listener{a, b} {
		select {
		case event := <-l.Receive():
			if event.Source != "state" || event.Data != "hello" {
				t.Errorf("event = %+v, want state/hello", event)
			}
		case <-time.After(time.Second):
			t.Fatal("listener never received the broadcast")
		}
	}
}

func TestClosedListenerStopsReceiving(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(ctx)
	l := d.NewListener()
	l.Close()

	for {
		select {
		case _, ok := <-l.Receive():
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("channel never closed after Close")
		}
	}
}

func TestSlowListenerIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(ctx)
	l := d.NewListener()

	// Overflow the listener buffer without draining it.
	for i := 0; i < 64; i++ {
		d.BroadcastEvent("state", i)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-l.Receive():
			if !ok {
				return // dropped, channel closed
			}
		case <-deadline:
			t.Fatal("slow listener was never dropped")
		}
	}
}
