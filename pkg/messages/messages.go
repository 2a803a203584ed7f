// Package messages owns the append-ordered message log of each
// conversation plus the per-message mutations: delete for everyone,
// hide for one viewer and emoji reactions.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"parlor/pkg/faults"
	"parlor/pkg/logger"
	"parlor/pkg/models"
	"parlor/pkg/registry"
	"parlor/pkg/store"
	"parlor/pkg/utils"
)

// Service writes and mutates messages. Log order is key order: unix-ms
// timestamp plus a process-local sequence number for same-millisecond
// sends.
type Service struct {
	st  store.Store
	reg *registry.Registry
	now func() time.Time
	seq atomic.Uint64
}

func New(st store.Store, reg *registry.Registry) *Service {
	return &Service{st: st, reg: reg, now: time.Now}
}

// Send appends a message and advances the conversation's activity
// marker. The sender's typing entry is cleared in the same patch.
func (s *Service) Send(convID, senderID, content string) (*models.Message, error) {
	if _, err := s.reg.GetForViewer(convID, senderID); err != nil {
		return nil, err
	}
	m := &models.Message{
		ID:             utils.GenMsgID(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Timestamp:      s.now().UnixMilli(),
	}
	key := store.ConvMsgKey(convID, m.Timestamp, s.seq.Add(1))
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := s.st.Put(key, b); err != nil {
		return nil, err
	}
	if err := s.st.Put(store.MsgIndexKey(m.ID), []byte(key)); err != nil {
		return nil, err
	}
	err = s.reg.Patch(convID, senderID, func(c *models.Conversation) {
		// the marker only moves forward; a slow write racing a newer
		// send must not regress the preview
		if m.Timestamp >= c.UpdatedAt {
			c.UpdatedAt = m.Timestamp
			c.LastMessageID = m.ID
		}
		delete(c.TypingIndicators, senderID)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("message_sent", "conv", convID, "msg", m.ID)
	return m, nil
}

// List returns the conversation log in send order for a participant.
// Deleted messages stay in place as tombstones; messages the viewer hid
// are filtered out.
func (s *Service) List(convID, viewerID string) ([]*models.Message, error) {
	if _, err := s.reg.GetForViewer(convID, viewerID); err != nil {
		return nil, err
	}
	var out []*models.Message
	err := s.st.Scan(store.ConvMsgPrefix(convID), func(_ string, v []byte) error {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		if m.HiddenFor(viewerID) {
			return nil
		}
		out = append(out, &m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get resolves a message by id.
func (s *Service) Get(msgID string) (*models.Message, error) {
	_, m, err := s.locate(msgID)
	return m, err
}

// DeleteForEveryone tombstones a message for all participants. Only the
// sender may delete; repeating the call is a no-op. Reactions and
// hiddenBy survive the tombstone.
func (s *Service) DeleteForEveryone(msgID, actorID string) error {
	key, _, err := s.locate(msgID)
	if err != nil {
		return err
	}
	return s.update(key, func(m *models.Message) error {
		if m.SenderID != actorID {
			return fmt.Errorf("only the sender can delete message %s: %w", msgID, faults.ErrUnauthorized)
		}
		if m.Deleted {
			return nil
		}
		m.Deleted = true
		m.Content = models.DeletedSentinel
		return nil
	})
}

// HideForViewer removes the message from one participant's view only.
// The tombstone and everyone else's view are untouched; a missing
// message is already invisible, so that case is a silent no-op.
func (s *Service) HideForViewer(msgID, viewerID string) error {
	key, m, err := s.locate(msgID)
	if errors.Is(err, faults.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.requireParticipant(m.ConversationID, viewerID); err != nil {
		return err
	}
	return s.update(key, func(m *models.Message) error {
		for _, h := range m.HiddenBy {
			if h == viewerID {
				return nil
			}
		}
		m.HiddenBy = append(m.HiddenBy, viewerID)
		return nil
	})
}

// ToggleReaction adds the user's reaction under emoji, or removes it if
// already present. Toggling twice restores the original state. Missing
// and deleted messages are silent no-ops.
func (s *Service) ToggleReaction(msgID, userID, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("emoji required: %w", faults.ErrInvalid)
	}
	key, m, err := s.locate(msgID)
	if errors.Is(err, faults.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.requireParticipant(m.ConversationID, userID); err != nil {
		return err
	}
	if m.Deleted {
		return nil
	}
	return s.update(key, func(m *models.Message) error {
		if m.Deleted {
			// deleted between locate and the locked re-read
			return nil
		}
		bucket := m.Reactions[emoji]
		for i, u := range bucket {
			if u == userID {
				bucket = append(bucket[:i], bucket[i+1:]...)
				if len(bucket) == 0 {
					delete(m.Reactions, emoji)
					if len(m.Reactions) == 0 {
						m.Reactions = nil
					}
				} else {
					m.Reactions[emoji] = bucket
				}
				return nil
			}
		}
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		m.Reactions[emoji] = append(bucket, userID)
		return nil
	})
}

func (s *Service) requireParticipant(convID, userID string) error {
	c, err := s.reg.Get(convID)
	if err != nil {
		return err
	}
	if !c.HasParticipant(userID) {
		return fmt.Errorf("user %s is not in conversation %s: %w", userID, convID, faults.ErrUnauthorized)
	}
	return nil
}

// locate maps a message id to its storage key and current value.
func (s *Service) locate(msgID string) (string, *models.Message, error) {
	keyB, err := s.st.Get(store.MsgIndexKey(msgID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, fmt.Errorf("message %s: %w", msgID, faults.ErrNotFound)
		}
		return "", nil, err
	}
	b, err := s.st.Get(string(keyB))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, fmt.Errorf("message %s: %w", msgID, faults.ErrNotFound)
		}
		return "", nil, err
	}
	var m models.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return "", nil, err
	}
	return string(keyB), &m, nil
}

// update applies a read-modify-write at a located storage key. The
// store holds the document lock for the duration of the callback, so
// the callback must not call back into the store.
func (s *Service) update(key string, apply func(*models.Message) error) error {
	return s.st.Update(key, func(cur []byte) ([]byte, error) {
		var m models.Message
		if err := json.Unmarshal(cur, &m); err != nil {
			return nil, err
		}
		if err := apply(&m); err != nil {
			return nil, err
		}
		return json.Marshal(&m)
	})
}

// SetClock overrides the time source; tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }
