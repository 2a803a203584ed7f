package models

// Conversation is the shared document for a direct or group chat. The
// per-user maps (LastSeen, TypingIndicators) are keyed by user id; each
// key is only ever written by its own user, so last-writer-wins per key
// is safe under the store's per-document update.
type Conversation struct {
	ID string `json:"id"`
	// Participants holds user ids; for direct conversations the pair is
	// stored sorted and is unique across the store.
	Participants []string `json:"participants"`
	IsGroup      bool     `json:"is_group,omitempty"`
	// Name and Admin are set for groups only.
	Name          string `json:"name,omitempty"`
	Admin         string `json:"admin,omitempty"`
	GroupImageRef string `json:"group_image_ref,omitempty"`
	LastMessageID string `json:"last_message_id,omitempty"`
	// UpdatedAt advances on every send (unix ms).
	UpdatedAt int64 `json:"updated_at"`
	// LastSeen maps user id -> last mark-as-read time (unix ms).
	LastSeen map[string]int64 `json:"last_seen,omitempty"`
	// TypingIndicators maps user id -> last typing heartbeat (unix ms).
	// Entries are never expired in place; readers treat them as stale
	// outside the typing window.
	TypingIndicators map[string]int64 `json:"typing_indicators,omitempty"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart in a direct conversation, or
// empty when the viewer is not a participant or the chat is a group.
func (c *Conversation) OtherParticipant(viewerID string) string {
	if c.IsGroup || len(c.Participants) != 2 {
		return ""
	}
	switch viewerID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

// ConversationSummary is the enriched per-viewer listing row: direct
// chats resolve the other party, groups carry their own metadata, and
// the preview is the newest message not hidden from the viewer.
type ConversationSummary struct {
	Conversation
	OtherUser   *User    `json:"other_user,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
