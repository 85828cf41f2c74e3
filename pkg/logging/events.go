package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultEventCapacity bounds how many browser events each sink retains.
const DefaultEventCapacity = 1000

// ConsoleEntry is one browser console message or uncaught page error.
type ConsoleEntry struct {
	Time   time.Time `json:"time"`
	PageID string    `json:"page_id"`
	// Level is the console message type (log, info, warning, error, debug...)
	// or "pageerror" for uncaught exceptions.
	Level string `json:"level"`
	Text  string `json:"text"`
}

// String formats the entry the way it is echoed to the component log.
func (e ConsoleEntry) String() string {
	if e.Level == LevelPageError {
		return fmt.Sprintf("[Page Error] %s", e.Text)
	}
	return fmt.Sprintf("[Browser Console %s] %s", e.Level, e.Text)
}

// LevelPageError marks entries produced by uncaught page errors.
const LevelPageError = "pageerror"

// ConsoleLog is the process-wide sink for browser console output. It keeps
// the most recent entries in a bounded buffer and echoes every entry to an
// optional component logger.
type ConsoleLog struct {
	mu       sync.Mutex
	entries  []ConsoleEntry
	capacity int
	echo     *Logger
}

// NewConsoleLog creates a console sink. A nil echo logger disables echoing.
func NewConsoleLog(capacity int, echo *Logger) *ConsoleLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &ConsoleLog{capacity: capacity, echo: echo}
}

// Add records an entry, evicting the oldest one when full.
func (c *ConsoleLog) Add(entry ConsoleEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	if len(c.entries) > c.capacity {
		c.entries = c.entries[len(c.entries)-c.capacity:]
	}
	c.mu.Unlock()

	if c.echo != nil {
		c.echo.Infof("%s", entry.String())
	}
}

// Entries returns the retained entries matching level, oldest first.
// An empty level or "all" matches everything. "warn" also matches the
// driver's "warning" type, and "error" matches uncaught page errors.
func (c *ConsoleLog) Entries(level string) []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ConsoleEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if matchesLevel(level, e.Level) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every retained entry.
func (c *ConsoleLog) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

// Len returns the number of retained entries.
func (c *ConsoleLog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Format renders entries one per line with timestamps.
func Format(entries []ConsoleEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s\n", e.Time.Format("15:04:05.000"), e.String())
	}
	return b.String()
}

func matchesLevel(filter, level string) bool {
	switch filter {
	case "", "all":
		return true
	case "warn":
		return level == "warn" || level == "warning"
	case "error":
		return level == "error" || level == LevelPageError
	default:
		return filter == level
	}
}

// NetworkEntry is one observed request and, once known, its response status.
type NetworkEntry struct {
	Time         time.Time `json:"time"`
	PageID       string    `json:"page_id"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	ResourceType string    `json:"resource_type,omitempty"`
	Status       int       `json:"status,omitempty"`
	Failure      string    `json:"failure,omitempty"`
}

// NetworkLog is the process-wide sink for observed page traffic.
type NetworkLog struct {
	mu       sync.Mutex
	entries  []NetworkEntry
	capacity int
}

// NewNetworkLog creates a bounded network sink.
func NewNetworkLog(capacity int) *NetworkLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &NetworkLog{capacity: capacity}
}

// Add records a network entry, evicting the oldest one when full.
func (n *NetworkLog) Add(entry NetworkEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.entries = append(n.entries, entry)
	if len(n.entries) > n.capacity {
		n.entries = n.entries[len(n.entries)-n.capacity:]
	}
}

// Entries returns entries accepted by keep, oldest first. A nil keep
// returns everything.
func (n *NetworkLog) Entries(keep func(NetworkEntry) bool) []NetworkEntry {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]NetworkEntry, 0, len(n.entries))
	for _, e := range n.entries {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every retained entry.
func (n *NetworkLog) Clear() {
	n.mu.Lock()
	n.entries = nil
	n.mu.Unlock()
}
