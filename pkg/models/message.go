package models

// DeletedSentinel replaces the content of a message deleted for everyone.
const DeletedSentinel = "This message was deleted"

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	// Timestamp is unix ms; log order is timestamp then insertion order.
	Timestamp int64 `json:"timestamp"`
	// Deleted marks a delete-for-everyone; content holds the sentinel.
	Deleted bool `json:"deleted,omitempty"`
	// HiddenBy lists viewers who hid the message from their own view.
	// It only ever grows.
	HiddenBy []string `json:"hidden_by,omitempty"`
	// Reactions maps emoji -> reacting user ids. Empty buckets are
	// dropped on toggle-off.
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// HiddenFor reports whether the viewer hid this message.
func (m *Message) HiddenFor(viewerID string) bool {
	for _, id := range m.HiddenBy {
		if id == viewerID {
			return true
		}
	}
	return false
}
