package logs

import (
	"fmt"
	"testing"

	"github.com/xscape-dev/agent/internal/models"
)

func TestSubscriberReceivesInOrder(t *testing.T) {
	ch := NewChannel(16)
	sub := ch.Subscribe()

	for i := 0; i < 5; i++ {
		ch.Publish(models.BuildOutput(models.LogLevelInfo, fmt.Sprintf("line %d", i)))
	}
	ch.Close()

	var got []string
	for msg := range sub.C {
		got = append(got, msg.Message)
	}

	if len(got) != 5 {
		t.Fatalf("received %d messages, want 5", len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("line %d", i)
		if msg != want {
			t.Errorf("message %d = %q, want %q", i, msg, want)
		}
	}
}

func TestLateSubscriberMissesEarlierMessages(t *testing.T) {
	ch := NewChannel(16)

	ch.Publish(models.BuildOutput(models.LogLevelInfo, "before"))

	sub := ch.Subscribe()
	ch.Publish(models.BuildOutput(models.LogLevelInfo, "after"))
	ch.Close()

	var got []string
	for msg := range sub.C {
		got = append(got, msg.Message)
	}

	if len(got) != 1 || got[0] != "after" {
		t.Fatalf("late subscriber got %v, want only [after]", got)
	}
}

func TestFullSubscriberDropsWithoutBlocking(t *testing.T) {
	ch := NewChannel(2)
	slow := ch.Subscribe()

	// The third publish must not block even though the subscriber
	// buffer is full.
	for i := 0; i < 3; i++ {
		ch.Publish(models.BuildOutput(models.LogLevelInfo, fmt.Sprintf("line %d", i)))
	}
	ch.Close()

	var got []string
	for msg := range slow.C {
		got = append(got, msg.Message)
	}
	if len(got) != 2 {
		t.Fatalf("received %d messages, want 2 buffered before the drop", len(got))
	}
	if got[0] != "line 0" || got[1] != "line 1" {
		t.Errorf("surviving messages = %v, want the earliest two", got)
	}
}

func TestDropAffectsOnlySlowSubscriber(t *testing.T) {
	ch := NewChannel(1)
	slow := ch.Subscribe()
	fast := ch.Subscribe()

	ch.Publish(models.BuildOutput(models.LogLevelInfo, "first"))

	// Drain the fast subscriber so its buffer has room again.
	<-fast.C

	ch.Publish(models.BuildOutput(models.LogLevelInfo, "second"))
	ch.Close()

	var fastGot []string
	for msg := range fast.C {
		fastGot = append(fastGot, msg.Message)
	}
	var slowGot []string
	for msg := range slow.C {
		slowGot = append(slowGot, msg.Message)
	}

	if len(fastGot) != 1 || fastGot[0] != "second" {
		t.Errorf("fast subscriber got %v, want [second]", fastGot)
	}
	if len(slowGot) != 1 || slowGot[0] != "first" {
		t.Errorf("slow subscriber got %v, want [first] with second dropped", slowGot)
	}
}

func TestCloseEndsAllSubscribers(t *testing.T) {
	ch := NewChannel(4)
	a := ch.Subscribe()
	b := ch.Subscribe()

	ch.Close()

	if _, open := <-a.C; open {
		t.Error("subscriber a still open after Close")
	}
	if _, open := <-b.C; open {
		t.Error("subscriber b still open after Close")
	}
	if !ch.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ch := NewChannel(4)
	ch.Close()
	ch.Close()
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	ch := NewChannel(4)
	ch.Close()
	ch.Publish(models.BuildOutput(models.LogLevelInfo, "ignored"))
}

func TestSubscribeAfterCloseSeesImmediateEnd(t *testing.T) {
	ch := NewChannel(4)
	ch.Close()

	sub := ch.Subscribe()
	if _, open := <-sub.C; open {
		t.Fatal("subscriber on a closed channel should observe immediate end-of-stream")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	ch := NewChannel(4)
	sub := ch.Subscribe()

	ch.Unsubscribe(sub)
	ch.Unsubscribe(sub)

	if n := ch.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() = %d after unsubscribe, want 0", n)
	}
	ch.Publish(models.BuildOutput(models.LogLevelInfo, "nobody home"))
}

func TestPublishNilIsIgnored(t *testing.T) {
	ch := NewChannel(4)
	sub := ch.Subscribe()
	ch.Publish(nil)
	ch.Close()
	if msg, open := <-sub.C; open {
		t.Fatalf("got unexpected message %v", msg)
	}
}
