// Package registry owns conversation lifecycle: direct-chat dedup, group
// creation, per-viewer listings, read cursors and typing heartbeats.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"parlor/pkg/directory"
	"parlor/pkg/faults"
	"parlor/pkg/logger"
	"parlor/pkg/models"
	"parlor/pkg/store"
	"parlor/pkg/utils"
)

// Registry manages conversation documents and their membership indexes.
type Registry struct {
	st  store.Store
	dir *directory.Directory
	// previewScan bounds how many of the newest messages are examined
	// when picking a listing preview the viewer can actually see.
	previewScan int
	now         func() time.Time
}

func New(st store.Store, dir *directory.Directory, previewScan int) *Registry {
	if previewScan <= 0 {
		previewScan = 10
	}
	return &Registry{st: st, dir: dir, previewScan: previewScan, now: time.Now}
}

// GetOrCreateDirect returns the single direct conversation for the pair,
// creating it when absent. The canonical sorted pair is unique: two
// racing creates converge on one winner.
func (r *Registry) GetOrCreateDirect(callerID, otherID string) (*models.Conversation, bool, error) {
	if callerID == otherID {
		return nil, false, fmt.Errorf("cannot open a direct chat with yourself: %w", faults.ErrInvalid)
	}
	for _, id := range []string{callerID, otherID} {
		if _, err := r.dir.Get(id); err != nil {
			return nil, false, err
		}
	}

	a, b := callerID, otherID
	if a > b {
		a, b = b, a
	}
	pairKey := store.DirectIndexKey(a, b)

	if existing, err := r.st.Get(pairKey); err == nil {
		c, gerr := r.Get(string(existing))
		return c, false, gerr
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	conv := &models.Conversation{
		ID:           utils.GenConvID(),
		Participants: []string{a, b},
		UpdatedAt:    r.now().UnixMilli(),
	}
	if err := r.putConv(conv); err != nil {
		return nil, false, err
	}
	if err := r.st.Insert(pairKey, []byte(conv.ID)); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// lost the race: discard ours and adopt the winner
			r.dropConv(conv)
			winner, gerr := r.st.Get(pairKey)
			if gerr != nil {
				return nil, false, gerr
			}
			c, gerr := r.Get(string(winner))
			return c, false, gerr
		}
		return nil, false, err
	}
	logger.Info("conversation_created", "conv", conv.ID, "kind", "direct")
	return conv, true, nil
}

// CreateGroup creates a group conversation. The creator becomes admin
// and is always a participant; duplicate member ids collapse. The
// optional groupImageRef is an opaque blob reference.
func (r *Registry) CreateGroup(adminID, name string, memberIDs []string, groupImageRef string) (*models.Conversation, error) {
	if name == "" {
		return nil, fmt.Errorf("group name required: %w", faults.ErrInvalid)
	}
	participants := lo.Uniq(append([]string{adminID}, memberIDs...))
	if len(participants) < 2 {
		return nil, fmt.Errorf("a group needs at least one member besides the admin: %w", faults.ErrInvalid)
	}
	for _, id := range participants {
		if _, err := r.dir.Get(id); err != nil {
			return nil, err
		}
	}
	conv := &models.Conversation{
		ID:            utils.GenConvID(),
		Participants:  participants,
		IsGroup:       true,
		Name:          name,
		Admin:         adminID,
		GroupImageRef: groupImageRef,
		UpdatedAt:     r.now().UnixMilli(),
	}
	if err := r.putConv(conv); err != nil {
		return nil, err
	}
	logger.Info("conversation_created", "conv", conv.ID, "kind", "group", "members", len(participants))
	return conv, nil
}

// Get loads a conversation by id.
func (r *Registry) Get(id string) (*models.Conversation, error) {
	b, err := r.st.Get(store.ConvKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", id, faults.ErrNotFound)
		}
		return nil, err
	}
	var c models.Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetForViewer loads a conversation and enforces membership.
func (r *Registry) GetForViewer(id, viewerID string) (*models.Conversation, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(viewerID) {
		return nil, fmt.Errorf("user %s is not in conversation %s: %w", viewerID, id, faults.ErrUnauthorized)
	}
	return c, nil
}

// ListForUser returns the viewer's conversations, most recently active
// first, each enriched with counterpart, preview and unread count.
func (r *Registry) ListForUser(viewerID string) ([]*models.ConversationSummary, error) {
	var convIDs []string
	err := r.st.Scan(store.UserConvPrefix(viewerID), func(_ string, v []byte) error {
		convIDs = append(convIDs, string(v))
		return nil
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.ConversationSummary, 0, len(convIDs))
	for _, id := range convIDs {
		c, err := r.Get(id)
		if err != nil {
			if errors.Is(err, faults.ErrNotFound) {
				continue // dangling membership row
			}
			return nil, err
		}
		s := &models.ConversationSummary{Conversation: *c}
		if !c.IsGroup {
			if otherID := c.OtherParticipant(viewerID); otherID != "" {
				other, err := r.dir.Get(otherID)
				if err != nil && !errors.Is(err, faults.ErrNotFound) {
					return nil, err
				}
				s.OtherUser = other
			}
		}
		preview, unread, err := r.previewAndUnread(c, viewerID)
		if err != nil {
			return nil, err
		}
		s.LastMessage = preview
		s.UnreadCount = unread
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt > summaries[j].UpdatedAt
	})
	return summaries, nil
}

// previewAndUnread walks the conversation log once: it counts messages
// newer than the viewer's read cursor and keeps the newest messages for
// preview selection.
func (r *Registry) previewAndUnread(c *models.Conversation, viewerID string) (*models.Message, int, error) {
	cursor := c.LastSeen[viewerID]
	unread := 0
	tail := make([]*models.Message, 0, r.previewScan)
	err := r.st.Scan(store.ConvMsgPrefix(c.ID), func(_ string, v []byte) error {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		if m.SenderID != viewerID && m.Timestamp > cursor && !m.HiddenFor(viewerID) {
			unread++
		}
		if len(tail) == r.previewScan {
			copy(tail, tail[1:])
			tail = tail[:r.previewScan-1]
		}
		tail = append(tail, &m)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	// newest first; skip what the viewer hid
	for i := len(tail) - 1; i >= 0; i-- {
		if !tail[i].HiddenFor(viewerID) {
			return tail[i], unread, nil
		}
	}
	return nil, unread, nil
}

// MarkAsRead advances the viewer's read cursor. The cursor is monotonic:
// a late delivery never moves it backwards.
func (r *Registry) MarkAsRead(convID, viewerID string) error {
	ts := r.now().UnixMilli()
	return r.patch(convID, viewerID, func(c *models.Conversation) {
		if c.LastSeen == nil {
			c.LastSeen = make(map[string]int64)
		}
		if ts > c.LastSeen[viewerID] {
			c.LastSeen[viewerID] = ts
		}
	})
}

// UpdateTyping records a typing heartbeat for the user.
func (r *Registry) UpdateTyping(convID, userID string) error {
	ts := r.now().UnixMilli()
	return r.patch(convID, userID, func(c *models.Conversation) {
		if c.TypingIndicators == nil {
			c.TypingIndicators = make(map[string]int64)
		}
		c.TypingIndicators[userID] = ts
	})
}

// ClearTyping removes the user's typing entry, typically on send.
func (r *Registry) ClearTyping(convID, userID string) error {
	return r.patch(convID, userID, func(c *models.Conversation) {
		delete(c.TypingIndicators, userID)
	})
}

// TypingUsers returns the other participants whose typing heartbeat is
// still inside the window. Stale entries are simply not reported.
func (r *Registry) TypingUsers(convID, viewerID string, window time.Duration) ([]string, error) {
	c, err := r.GetForViewer(convID, viewerID)
	if err != nil {
		return nil, err
	}
	cutoff := r.now().UnixMilli() - window.Milliseconds()
	var out []string
	for uid, ts := range c.TypingIndicators {
		if uid != viewerID && ts > cutoff {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out, nil
}

// patch applies a membership-checked read-modify-write to a conversation.
func (r *Registry) patch(convID, actorID string, apply func(*models.Conversation)) error {
	err := r.st.Update(store.ConvKey(convID), func(cur []byte) ([]byte, error) {
		var c models.Conversation
		if err := json.Unmarshal(cur, &c); err != nil {
			return nil, err
		}
		if !c.HasParticipant(actorID) {
			return nil, fmt.Errorf("user %s is not in conversation %s: %w", actorID, convID, faults.ErrUnauthorized)
		}
		apply(&c)
		return json.Marshal(&c)
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("conversation %s: %w", convID, faults.ErrNotFound)
	}
	return err
}

// Patch exposes the membership-checked update for sibling packages.
func (r *Registry) Patch(convID, actorID string, apply func(*models.Conversation)) error {
	return r.patch(convID, actorID, apply)
}

func (r *Registry) putConv(c *models.Conversation) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.st.Put(store.ConvKey(c.ID), b); err != nil {
		return err
	}
	for _, p := range c.Participants {
		if err := r.st.Put(store.UserConvKey(p, c.ID), []byte(c.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) dropConv(c *models.Conversation) {
	_ = r.st.Delete(store.ConvKey(c.ID))
	for _, p := range c.Participants {
		_ = r.st.Delete(store.UserConvKey(p, c.ID))
	}
}

// SetClock overrides the time source; tests only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }
