package core

import "sync"

// IsGroupedWithPrevious reports whether messages[index] renders together with the message
// right before it. The first message is never grouped; out-of-range indexes are not grouped.
func IsGroupedWithPrevious(messages []Message, index int) bool {
	if index <= 0 || index >= len(messages) {
		return false
	}
	return messages[index].Sender == messages[index-1].Sender
}

// Classify returns the grouping flag of every message in one pass.
func Classify(messages []Message) []bool {
	flags := make([]bool, len(messages))
	for i := range messages {
		flags[i] = IsGroupedWithPrevious(messages, i)
	}
	return flags
}

type groupKey struct {
	seq         int
	predecessor string
}

// GroupCache memoizes grouping flags keyed by (sequence, predecessor sender).
// Appending only ever invalidates the boundary entry, so a log that grows
// by one message costs one comparison.
type GroupCache struct {
	mu    sync.Mutex
	flags map[groupKey]bool
}

// NewGroupCache creates an empty cache.
func NewGroupCache() *GroupCache {
	return &GroupCache{flags: make(map[groupKey]bool)}
}

// Classify returns flags for messages, reusing cached entries.
func (c *GroupCache) Classify(messages []Message) []bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	flags := make([]bool, len(messages))
	for i := range messages {
		if i == 0 {
			continue
		}
		key := groupKey{seq: messages[i].Seq, predecessor: messages[i-1].Sender}
		grouped, ok := c.flags[key]
		if !ok {
			grouped = IsGroupedWithPrevious(messages, i)
			c.flags[key] = grouped
		}
		flags[i] = grouped
	}
	return flags
}

// Len returns the number of cached entries.
func (c *GroupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flags)
}

// Reset drops every cached entry.
func (c *GroupCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = make(map[groupKey]bool)
}
