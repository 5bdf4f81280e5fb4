package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventBusPublishesToSpecificAndGlobalListeners(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []EventType
	var wg sync.WaitGroup
	wg.Add(2)

	record := func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	}
	bus.Subscribe(EventTurnSealed, record)
	bus.SubscribeAll(record)

	bus.Publish(&Event{Type: EventTurnSealed, Data: TurnSealedData{TurnID: "t1"}})

	if !waitForWG(&wg, 200*time.Millisecond) {
		t.Fatal("timed out waiting for listeners")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
}

func TestEventBusRecoversFromPanic(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(EventTurnFailed, func(*Event) {
		panic("listener panic")
	})
	bus.SubscribeAll(func(*Event) {
		wg.Done()
	})

	bus.Publish(&Event{Type: EventTurnFailed})

	if !waitForWG(&wg, 200*time.Millisecond) {
		t.Fatal("expected global listener to run after a panicking listener")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()

	var specific, global atomic.Int32
	unsubSpecific := bus.Subscribe(EventSpeechStarted, func(*Event) { specific.Add(1) })
	unsubGlobal := bus.SubscribeAll(func(*Event) { global.Add(1) })

	bus.Publish(&Event{Type: EventSpeechStarted})
	unsubSpecific()
	unsubGlobal()
	bus.Publish(&Event{Type: EventSpeechStarted})
	bus.Close()

	if got := specific.Load(); got != 1 {
		t.Errorf("expected specific listener to run once, got %d", got)
	}
	if got := global.Load(); got != 1 {
		t.Errorf("expected global listener to run once, got %d", got)
	}
}

func TestEventBusCloseDrainsAndDrops(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()

	var count atomic.Int32
	bus.SubscribeAll(func(*Event) {
		time.Sleep(5 * time.Millisecond)
		count.Add(1)
	})

	for i := 0; i < 5; i++ {
		bus.Publish(&Event{Type: EventSpeechEnded})
	}
	bus.Close()

	if got := count.Load(); got != 5 {
		t.Fatalf("expected Close to drain 5 deliveries, got %d", got)
	}

	bus.Publish(&Event{Type: EventSpeechEnded})
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 5 {
		t.Errorf("expected events after Close to be dropped, got %d", got)
	}

	// Closing twice is harmless.
	bus.Close()
}

func TestEventBusClear(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe(EventTurnSealed, func(*Event) { count.Add(1) })
	bus.SubscribeAll(func(*Event) { count.Add(1) })
	bus.Clear()

	bus.Publish(&Event{Type: EventTurnSealed})
	time.Sleep(20 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no deliveries after Clear, got %d", got)
	}
}

func waitForWG(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
