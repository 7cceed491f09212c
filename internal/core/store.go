package core

import (
	"sync"
	"time"
)

// MessageStore is the ordered message log of one room.
// Sequence numbers are contiguous from 0; every mutation happens under one lock,
// so readers never observe a partially numbered message.
type MessageStore struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{now: time.Now}
}

// MergeHistory numbers history 0..n-1 in input order.
// History is the fixed past: it may only be merged into an empty store.
func (s *MessageStore) MergeHistory(history []Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) != 0 {
		return invalidState("merge history into store holding %d messages", len(s.messages))
	}

	ts := s.now()
	messages := make([]Message, 0, len(history))
	for i, d := range history {
		messages = append(messages, Message{
			Seq:       i,
			Sender:    d.Sender,
			Text:      d.Text,
			CreatedAt: ts,
		})
	}
	s.messages = messages
	return nil
}

// Append adds a message received from someone else and returns it.
func (s *MessageStore) Append(sender, text string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(Message{Sender: sender, Text: text})
}

// AppendLocal adds an optimistic, locally authored message awaiting delivery.
func (s *MessageStore) AppendLocal(sender, text, clientID string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(Message{
		Sender:   sender,
		Text:     text,
		ClientID: clientID,
		Local:    true,
		Delivery: DeliveryPending,
	})
}

func (s *MessageStore) appendLocked(msg Message) Message {
	msg.Seq = len(s.messages)
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, msg)
	return msg
}

// SetDelivery updates the delivery state of a local message.
// It returns false when seq is unknown or the message was not authored locally.
func (s *MessageStore) SetDelivery(seq int, state DeliveryState, reason string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < 0 || seq >= len(s.messages) || !s.messages[seq].Local {
		return Message{}, false
	}
	msg := s.messages[seq]
	// Delivered is final: a late transport answer must not downgrade it.
	if msg.Delivery == DeliveryDelivered {
		return msg, true
	}
	msg.Delivery = state
	msg.DeliveryErr = reason
	s.messages[seq] = msg
	return msg, true
}

// FindUnconfirmed returns the oldest local message that an incoming echo confirms.
// A non-empty clientID must match exactly; otherwise sender and text are compared.
func (s *MessageStore) FindUnconfirmed(clientID, sender, text string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if !m.Local || m.Delivery == DeliveryDelivered {
			continue
		}
		if clientID != "" {
			if m.ClientID == clientID {
				return m, true
			}
			continue
		}
		if m.Sender == sender && m.Text == text {
			return m, true
		}
	}
	return Message{}, false
}

// All returns a snapshot of the log.
func (s *MessageStore) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get returns the message with the given sequence.
func (s *MessageStore) Get(seq int) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if seq < 0 || seq >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[seq], true
}

// Count returns the number of messages in the log.
func (s *MessageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// GroupedWithPrevious classifies the message at index against the current log.
func (s *MessageStore) GroupedWithPrevious(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IsGroupedWithPrevious(s.messages, index)
}

// Reset empties the store so that history can be merged again.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
