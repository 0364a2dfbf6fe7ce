package event

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/releasetrain/internal/logging"
)

func TestBus_PublishToSpecificThenWildcard(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.SubscribeAll(func(e Event) {
		got = append(got, "wildcard:"+e.EventType())
	})
	bus.Subscribe(TypeStepStarted, func(e Event) {
		started := e.(StepStartedEvent)
		got = append(got, "specific:"+started.Project+"/"+started.Step)
	})
	bus.Subscribe(TypeGroupStarted, func(e Event) {
		t.Error("handler for another event type should not be called")
	})

	bus.Publish(NewStepStartedEvent("spring-cloud-sleuth", "build"))

	want := []string{"specific:spring-cloud-sleuth/build", "wildcard:step.started"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_NilBusDiscards(t *testing.T) {
	var bus *Bus
	bus.Publish(NewGroupStartedEvent(1, []string{"a"}))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := make(map[string]int)
	id1 := bus.Subscribe("test.event", func(e Event) { calls["first"]++ })
	bus.Subscribe("test.event", func(e Event) { calls["second"]++ })

	if !bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return true when subscription exists")
	}
	if bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return false the second time")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("expected 1 subscription, got %d", bus.SubscriptionCount())
	}

	bus.Publish(newBaseEvent("test.event"))

	if calls["first"] != 0 || calls["second"] != 1 {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestBus_HandlerPanicIsLogged(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewLoggerWriter(&buf, logging.LevelDebug))

	calls := 0
	bus.Subscribe(TypeStepFinished, func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe(TypeStepFinished, func(e Event) {
		calls++
	})

	bus.Publish(NewStepFinishedEvent("p", "deploy", "FAILED", "FAILURE", time.Second, nil))

	if calls != 2 {
		t.Errorf("expected both handlers to be called despite panic, got %d calls", calls)
	}
	if !strings.Contains(buf.String(), "event handler panicked") {
		t.Errorf("expected panic to be logged, got %q", buf.String())
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(TypeProjectFinished, func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(NewProjectFinishedEvent("p", "SUCCESS", false, false, 0))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("expected 100 calls, got %d", calls)
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			id := bus.Subscribe("test.event", func(e Event) {})
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("expected 0 subscriptions after concurrent add/remove, got %d", bus.SubscriptionCount())
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)

	ids := make(map[string]bool)
	for range 10000 {
		id := bus.Subscribe("test.event", func(e Event) {})
		if ids[id] {
			t.Fatalf("duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}

func TestEventConstructors(t *testing.T) {
	events := []struct {
		event Event
		want  string
	}{
		{NewStepStartedEvent("p", "s"), TypeStepStarted},
		{NewStepFinishedEvent("p", "s", "SUCCEEDED", "SUCCESS", 0, nil), TypeStepFinished},
		{NewProjectFinishedEvent("p", "SUCCESS", false, false, 0), TypeProjectFinished},
		{NewGroupStartedEvent(1, nil), TypeGroupStarted},
		{NewGroupFinishedEvent(1, "SUCCESS", 0), TypeGroupFinished},
		{NewGroupTimedOutEvent(1, time.Minute, []string{"p"}), TypeGroupTimedOut},
	}
	for _, tt := range events {
		if tt.event.EventType() != tt.want {
			t.Errorf("EventType() = %q, want %q", tt.event.EventType(), tt.want)
		}
		if tt.event.Timestamp().IsZero() {
			t.Errorf("%s: timestamp not set", tt.want)
		}
	}
}
