package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	n := New(10, zap.NewNop())
	defer n.Close()

	for i := 1; i <= 5; i++ {
		event := n.Publish(EventScanCompleted, nil)
		assert.Equal(t, uint64(i), event.Seq)
	}
	assert.Equal(t, uint64(5), n.LastSeq())
}

func TestSubscriberReceivesInSeqOrder(t *testing.T) {
	n := New(100, zap.NewNop())
	defer n.Close()

	sub := n.Subscribe(0)
	for i := 0; i < 20; i++ {
		n.Publish(EventScanCompleted, i)
	}

	var lastSeq uint64
	for i := 0; i < 20; i++ {
		event := <-sub.C
		require.Greater(t, event.Seq, lastSeq, "events must arrive in seq order")
		lastSeq = event.Seq
	}
}

func TestBackfillFromSince(t *testing.T) {
	n := New(100, zap.NewNop())
	defer n.Close()

	for i := 0; i < 10; i++ {
		n.Publish(EventScanCompleted, i)
	}

	// Reconnect after seeing seq 6: expect 7, 8, 9, 10 then live events.
	sub := n.Subscribe(6)
	for want := uint64(7); want <= 10; want++ {
		event := <-sub.C
		assert.Equal(t, want, event.Seq)
	}

	n.Publish(EventScanCompleted, "live")
	event := <-sub.C
	assert.Equal(t, uint64(11), event.Seq)
}

func TestBackfillTruncatedToRing(t *testing.T) {
	n := New(5, zap.NewNop())
	defer n.Close()

	for i := 0; i < 20; i++ {
		n.Publish(EventScanCompleted, i)
	}

	sub := n.Subscribe(0)
	event := <-sub.C
	assert.Equal(t, uint64(16), event.Seq, "only the retained tail is backfilled")
}

func TestLaggedSubscriberDisconnected(t *testing.T) {
	n := New(4, zap.NewNop())
	defer n.Close()

	sub := n.Subscribe(0)

	// Overrun the subscriber queue (capacity + slack) without draining.
	for i := 0; i < 4+subscriberQueueSlack+1; i++ {
		n.Publish(EventScanCompleted, i)
	}

	// Drain; the channel must be closed after the overrun.
	for range sub.C {
	}
	assert.True(t, sub.Lagged())
	assert.Equal(t, 0, n.SubscriberCount())
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	n := New(4, zap.NewNop())
	defer n.Close()

	_ = n.Subscribe(0) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			n.Publish(EventScanCompleted, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := New(10, zap.NewNop())
	defer n.Close()

	sub := n.Subscribe(0)
	n.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	assert.False(t, sub.Lagged(), "clean unsubscribe is not a lag signal")
}

func TestMultipleSubscribersSeeSameEvents(t *testing.T) {
	n := New(100, zap.NewNop())
	defer n.Close()

	a := n.Subscribe(0)
	b := n.Subscribe(0)

	n.Publish(EventIncidentCreated, "x")

	ea, eb := <-a.C, <-b.C
	assert.Equal(t, ea.Seq, eb.Seq)
	assert.Equal(t, ea.Kind, eb.Kind)
}
