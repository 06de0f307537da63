package bufferbus

import (
	"errors"
	"sync"
	"testing"
	"time"

	streamplayout "github.com/e7canasta/stream-playout"
)

func videoBuffer(seq uint64) streamplayout.MediaBuffer {
	return streamplayout.MediaBuffer{
		Data:     []byte{0, 0, 0, 1},
		Length:   4,
		Duration: 40 * time.Millisecond,
		Stream:   streamplayout.StreamVideo,
		Seq:      seq,
	}
}

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan streamplayout.MediaBuffer, 10)
	if err := bus.Subscribe("test", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(videoBuffer(1))

	select {
	case received := <-ch:
		if received.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", received.Seq)
		}
		if received.Stream != streamplayout.StreamVideo {
			t.Errorf("Expected video buffer, got %v", received.Stream)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for buffer")
	}
}

// TestHandleBufferIsPublish verifies the bus works as a player sink.
func TestHandleBufferIsPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	var sink streamplayout.BufferSink = bus

	ch := make(chan streamplayout.MediaBuffer, 1)
	bus.Subscribe("test", ch)

	sink.HandleBuffer(videoBuffer(7))

	if got := (<-ch).Seq; got != 7 {
		t.Errorf("Expected seq 7, got %d", got)
	}
	if got := bus.Stats().TotalPublished; got != 1 {
		t.Errorf("Expected 1 published, got %d", got)
	}
}

// TestNonBlockingPublish verifies Publish never blocks.
func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan streamplayout.MediaBuffer, 1)
	bus.Subscribe("slow", ch)

	done := make(chan bool)
	go func() {
		bus.Publish(videoBuffer(1))
		bus.Publish(videoBuffer(2))
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if received := <-ch; received.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", received.Seq)
	}

	sub := bus.Stats().Subscribers["slow"]
	if sub.Sent != 1 {
		t.Errorf("Expected 1 sent, got %d", sub.Sent)
	}
	if sub.Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", sub.Dropped)
	}
}

// TestStatsConservation verifies sent + dropped == published × subscribers.
func TestStatsConservation(t *testing.T) {
	bus := New()
	defer bus.Close()

	bus.Subscribe("recorder", make(chan streamplayout.MediaBuffer, 10))
	bus.Subscribe("preview", make(chan streamplayout.MediaBuffer, 1))
	bus.Subscribe("analytics", make(chan streamplayout.MediaBuffer, 10))

	for i := uint64(1); i <= 5; i++ {
		bus.Publish(videoBuffer(i))
	}

	stats := bus.Stats()
	if stats.TotalPublished != 5 {
		t.Errorf("Expected 5 published, got %d", stats.TotalPublished)
	}

	expected := stats.TotalPublished * uint64(len(stats.Subscribers))
	if actual := stats.TotalSent + stats.TotalDropped; actual != expected {
		t.Errorf("Conservation violated: %d sent + %d dropped != %d",
			stats.TotalSent, stats.TotalDropped, expected)
	}

	if stats.Subscribers["preview"].Sent != 1 || stats.Subscribers["preview"].Dropped != 4 {
		t.Errorf("preview stats = %+v, want 1 sent / 4 dropped", stats.Subscribers["preview"])
	}
	if rate := SubscriberDropRate(stats, "preview"); rate != 0.8 {
		t.Errorf("preview drop rate = %v, want 0.8", rate)
	}
	if rate := DropRate(stats); rate <= 0 || rate >= 1 {
		t.Errorf("bus drop rate = %v, want between 0 and 1", rate)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New()

	if err := bus.Subscribe("nil", nil); !errors.Is(err, ErrNilChannel) {
		t.Errorf("Subscribe(nil) error = %v, want ErrNilChannel", err)
	}

	ch := make(chan streamplayout.MediaBuffer, 1)
	bus.Subscribe("dup", ch)
	if err := bus.Subscribe("dup", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("duplicate Subscribe error = %v, want ErrSubscriberExists", err)
	}

	if err := bus.Unsubscribe("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Unsubscribe(missing) error = %v, want ErrSubscriberNotFound", err)
	}

	bus.Close()
	if err := bus.Subscribe("late", ch); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrBusClosed", err)
	}
	if err := bus.Unsubscribe("dup"); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Unsubscribe after Close error = %v, want ErrBusClosed", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := New()
	ch := make(chan streamplayout.MediaBuffer, 1)
	bus.Subscribe("test", ch)

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	bus.Publish(videoBuffer(1))

	select {
	case <-ch:
		t.Error("buffer delivered after Close")
	default:
	}
	if got := bus.Stats().TotalPublished; got != 0 {
		t.Errorf("Expected 0 published after Close, got %d", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan streamplayout.MediaBuffer, 10)
	bus.Subscribe("test", ch)
	bus.Publish(videoBuffer(1))

	if err := bus.Unsubscribe("test"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	bus.Publish(videoBuffer(2))

	if got := len(ch); got != 1 {
		t.Errorf("Expected 1 buffer in channel, got %d", got)
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(videoBuffer(uint64(j)))
			}
		}()
	}

	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		bus.Subscribe(id, make(chan streamplayout.MediaBuffer, 8))
	}

	wg.Wait()

	if got := bus.Stats().TotalPublished; got != 400 {
		t.Errorf("Expected 400 published, got %d", got)
	}
}
