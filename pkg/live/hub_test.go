package live

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// attach registers a fake connection directly; Publish never touches
// the underlying websocket.
func attach(h *Hub, userID string, buf int) *Client {
	c := &Client{hub: h, send: make(chan []byte, buf), userID: userID}
	h.mu.Lock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Client]bool)
	}
	h.byUser[userID][c] = true
	h.mu.Unlock()
	return c
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case b := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestPublishReachesAllRecipientConnections(t *testing.T) {
	h := NewHub()
	a1 := attach(h, "usr_a", 4)
	a2 := attach(h, "usr_a", 4)
	b1 := attach(h, "usr_b", 4)
	outsider := attach(h, "usr_c", 4)

	h.Publish([]string{"usr_a", "usr_b"}, Event{Kind: "message", ConversationID: "cnv_1"})

	for _, c := range []*Client{a1, a2, b1} {
		ev := recvEvent(t, c)
		require.Equal(t, "message", ev.Kind)
		require.Equal(t, "cnv_1", ev.ConversationID)
	}
	require.Empty(t, outsider.send)
}

func TestPublishDropsSlowConsumer(t *testing.T) {
	h := NewHub()
	slow := attach(h, "usr_a", 1)

	h.Publish([]string{"usr_a"}, Event{Kind: "message"})
	h.Publish([]string{"usr_a"}, Event{Kind: "message"}) // buffer full: dropped

	h.mu.RLock()
	_, still := h.byUser["usr_a"][slow]
	h.mu.RUnlock()
	require.False(t, still)

	// the channel was closed after draining the one buffered frame
	<-slow.send
	_, open := <-slow.send
	require.False(t, open)
}

func TestPublishToUnknownUserIsNoop(t *testing.T) {
	h := NewHub()
	h.Publish([]string{"usr_ghost"}, Event{Kind: "message"})
}

func TestRegisterUnregisterLifecycle(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := &Client{hub: h, send: make(chan []byte, 1), userID: "usr_a"}
	h.register <- c

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.byUser["usr_a"]) == 1
	}, time.Second, 5*time.Millisecond)

	h.unregister <- c
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.byUser["usr_a"]) == 0
	}, time.Second, 5*time.Millisecond)
}
