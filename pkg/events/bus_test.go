package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ExtractMeta struct {
	OperationID string `json:"operation_id"`
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	first := bus.Subscribe()
	second := bus.Subscribe()

	bus.Publish(context.Background(), ExtractMeta{OperationID: "op-1"})

	for _, sub := range []*Subscription{first, second} {
		select {
		case event := <-sub.Events():
			assert.Equal(t, "extract_meta", event.Kind)
			assert.Equal(t, ExtractMeta{OperationID: "op-1"}, event.Payload)
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}
	}
}

func TestSubscribeMissesEarlierEvents(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.Publish(context.Background(), ExtractMeta{OperationID: "before"})

	sub := bus.Subscribe()
	bus.Publish(context.Background(), ExtractMeta{OperationID: "after"})

	event := <-sub.Events()
	assert.Equal(t, ExtractMeta{OperationID: "after"}, event.Payload)
}

func TestSlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	slow := bus.Subscribe()

	// Never read from slow; one publish past the buffer drops it.
	for i := 0; i <= subscriberBuffer; i++ {
		bus.Publish(context.Background(), ExtractMeta{OperationID: "flood"})
	}

	// The backlog stays readable, then the channel reports closed.
	count := 0
	for range slow.Events() {
		count++
	}
	assert.Equal(t, subscriberBuffer, count)

	// The bus keeps serving later subscribers.
	live := bus.Subscribe()
	bus.Publish(context.Background(), ExtractMeta{OperationID: "still-alive"})
	select {
	case event := <-live.Events():
		assert.Equal(t, ExtractMeta{OperationID: "still-alive"}, event.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected event after drop")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	_ = bus.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			bus.Publish(context.Background(), ExtractMeta{OperationID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	type ExtractMetaError struct{}
	assert.Equal(t, "extract_meta", KindOf(ExtractMeta{}))
	assert.Equal(t, "extract_meta_error", KindOf(&ExtractMetaError{}))
}

func TestStreamWritesSSEFrames(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	h := &handler{bus: bus}

	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	finished := make(chan error, 1)
	go func() {
		finished <- h.stream(c)
	}()

	// Give the handler a moment to subscribe, then publish and disconnect.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(context.Background(), ExtractMeta{OperationID: "op-9"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	require.NoError(t, <-finished)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.Contains(body, "event: extract_meta\n"), body)
	assert.True(t, strings.Contains(body, `data: {"operation_id":"op-9"}`), body)
}
