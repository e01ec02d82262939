package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe("import.batch", received)

	bus.Publish(Event{
		Type:      "import.batch",
		AccountID: "acct-1",
		Timestamp: time.Now(),
		Data:      map[string]int{"imported": 25},
	})

	select {
	case evt := <-received:
		if evt.Type != "import.batch" {
			t.Errorf("expected import.batch, got %s", evt.Type)
		}
		if evt.AccountID != "acct-1" {
			t.Errorf("expected acct-1, got %s", evt.AccountID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe("process.batch", ch1)
	bus.Subscribe("process.batch", ch2)

	bus.Publish(Event{Type: "process.batch", AccountID: "acct-1"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	importCh := make(chan Event, 10)
	enrichCh := make(chan Event, 10)
	bus.Subscribe("import.batch", importCh)
	bus.Subscribe("enrich.pass", enrichCh)

	bus.Publish(Event{Type: "import.batch", AccountID: "acct-1"})

	select {
	case <-importCh:
	case <-time.After(time.Second):
		t.Fatal("import subscriber did not receive event")
	}

	select {
	case <-enrichCh:
		t.Fatal("enrich subscriber should NOT receive import.batch event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_PublishConcurrent(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe("lots.run", received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bus.Publish(Event{Type: "lots.run", Data: n})
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New()
	ch := make(chan Event, 1)
	bus.Subscribe("import.warning", ch)
	bus.Close()

	bus.Publish(Event{Type: "import.warning"})

	select {
	case <-ch:
		t.Fatal("expected no delivery after Close")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}
