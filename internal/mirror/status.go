package mirror

import (
	"fmt"
	"sync"
	"time"
)

// StatusSink receives human-readable progress notes from a running backfill.
type StatusSink interface {
	Update(msg string)
}

// StatusFunc adapts a plain function to a StatusSink.
type StatusFunc func(msg string)

// Update implements StatusSink
func (f StatusFunc) Update(msg string) { f(msg) }

// NopSink discards status updates.
type NopSink struct{}

// Update implements StatusSink
func (NopSink) Update(string) {}

// PauseNotifier fans rate-limit pause notes out to the sinks of whichever
// runs are active. The governor is shared across sessions, so its status
// callback cannot name a sink directly; runs subscribe for their duration.
type PauseNotifier struct {
	mu    sync.Mutex
	sinks map[uint64]StatusSink
	next  uint64
}

// NewPauseNotifier creates an empty notifier.
func NewPauseNotifier() *PauseNotifier {
	return &PauseNotifier{sinks: make(map[uint64]StatusSink)}
}

// Subscribe registers a sink; the returned function removes it.
func (n *PauseNotifier) Subscribe(sink StatusSink) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	n.sinks[id] = sink

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.sinks, id)
	}
}

// Notify reports a mandated wait to every subscribed sink. Wired as the rate
// governor's status callback.
func (n *PauseNotifier) Notify(wait time.Duration) {
	n.mu.Lock()
	sinks := make([]StatusSink, 0, len(n.sinks))
	for _, sink := range n.sinks {
		sinks = append(sinks, sink)
	}
	n.mu.Unlock()

	for _, sink := range sinks {
		sink.Update(fmt.Sprintf("Rate limited, waiting %s", wait))
	}
}
