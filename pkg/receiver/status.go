// ABOUTME: Status notifications emitted by the receiver
// ABOUTME: StatusSink capability plus an append-only, subscribable StatusLog
package receiver

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStatusHistory is the number of entries a StatusLog keeps by default
const DefaultStatusHistory = 1000

// Status is one timestamped, human-readable notification
type Status struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the status as "15:04:05 message"
func (s Status) String() string {
	return s.Time.Format("15:04:05") + " " + s.Message
}

// StatusSink receives status notifications. OnStatus is called from the
// accept loop and session goroutines and must not block for long.
type StatusSink interface {
	OnStatus(Status)
}

// StatusFunc adapts a function to StatusSink
type StatusFunc func(Status)

// OnStatus calls f(s)
func (f StatusFunc) OnStatus(s Status) { f(s) }

// MultiStatus fans a notification out to several sinks
type MultiStatus []StatusSink

// OnStatus forwards s to every non-nil sink
func (m MultiStatus) OnStatus(s Status) {
	for _, sink := range m {
		if sink != nil {
			sink.OnStatus(s)
		}
	}
}

// discardStatus drops everything
type discardStatus struct{}

func (discardStatus) OnStatus(Status) {}

// StatusLog records notifications in order and forwards them to
// subscribers. Slow subscribers miss entries rather than stall the sender.
type StatusLog struct {
	limit   int
	entries []Status
	subs    map[int]chan Status
	nextSub int
	mu      sync.RWMutex
}

// NewStatusLog creates a log keeping the last limit entries
// (DefaultStatusHistory when limit <= 0)
func NewStatusLog(limit int) *StatusLog {
	if limit <= 0 {
		limit = DefaultStatusHistory
	}
	return &StatusLog{
		limit: limit,
		subs:  make(map[int]chan Status),
	}
}

// OnStatus appends s and publishes it
func (l *StatusLog) OnStatus(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, s)
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}

	for _, ch := range l.subs {
		select {
		case ch <- s:
		default:
			// Don't block if subscriber is full
		}
	}
}

// Entries returns a copy of the retained history, oldest first
func (l *StatusLog) Entries() []Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Status, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries
func (l *StatusLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe returns the current history and a channel receiving every later
// entry. Call cancel to unsubscribe; it closes the channel.
func (l *StatusLog) Subscribe(buffer int) (history []Status, updates <-chan Status, cancel func()) {
	if buffer <= 0 {
		buffer = 64
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan Status, buffer)
	l.subs[id] = ch

	history = make([]Status, len(l.entries))
	copy(history, l.entries)

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return history, ch, cancel
}

// notifier stamps and forwards messages to a StatusSink
type notifier struct {
	sink StatusSink
	now  func() time.Time
}

func newNotifier(sink StatusSink) notifier {
	if sink == nil {
		sink = discardStatus{}
	}
	return notifier{sink: sink, now: time.Now}
}

func (n notifier) notify(format string, args ...any) {
	n.sink.OnStatus(Status{Time: n.now(), Message: fmt.Sprintf(format, args...)})
}
