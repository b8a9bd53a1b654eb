package session

import "time"

// DefaultChatLimit is how many chat lines a ChatLog keeps.
const DefaultChatLimit = 200

// ChatEntry is one received chat line stamped with the local receipt time.
type ChatEntry struct {
	UserName   string
	Message    string
	ReceivedAt time.Time
}

// ChatLog keeps the most recent chat lines, oldest first.
type ChatLog struct {
	limit   int
	entries []ChatEntry
}

// NewChatLog returns a log holding at most limit entries.
func NewChatLog(limit int) *ChatLog {
	if limit <= 0 {
		limit = DefaultChatLimit
	}
	return &ChatLog{limit: limit}
}

// Append adds e, dropping the oldest entry when full.
func (l *ChatLog) Append(e ChatEntry) {
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log.
func (l *ChatLog) Entries() []ChatEntry {
	return append([]ChatEntry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *ChatLog) Len() int {
	return len(l.entries)
}
