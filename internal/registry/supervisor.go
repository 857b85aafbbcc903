// Package registry tracks which channels are being watched and owns the
// lifecycle of their watch loops.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/mirror"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/types"
)

// ErrNotWatched is returned when a channel has no running watch loop.
var ErrNotWatched = errors.New("channel is not being watched")

// LoopFactory builds a watch loop seeded from a channel's durable record.
type LoopFactory func(ch *models.MonitoredChannel) *mirror.WatchLoop

// CursorPersist durably records a channel's watch cursor. Called with the
// loop's final in-memory cursor after the loop has drained.
type CursorPersist func(channelID types.ChannelID, cursor types.MessageID)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCursorPersist persists each loop's final cursor on Stop, so a restart
// resumes from where watching left off instead of the post-backfill cursor.
func WithCursorPersist(fn CursorPersist) Option {
	return func(s *Supervisor) {
		s.persist = fn
	}
}

// WatchStatus describes one supervised channel.
type WatchStatus struct {
	ChannelID types.ChannelID `json:"channel_id"`
	Name      string          `json:"name"`
	Cursor    types.MessageID `json:"cursor"`
}

type watchEntry struct {
	name string
	loop *mirror.WatchLoop
}

// Supervisor owns one watch loop per registered channel. Start is idempotent
// and Stop waits for the loop to drain before returning.
type Supervisor struct {
	mu          sync.Mutex
	entries     map[types.ChannelID]*watchEntry
	factory     LoopFactory
	persist     CursorPersist
	stopTimeout time.Duration
	log         *logging.Logger
}

// NewSupervisor creates a supervisor using the given loop factory.
func NewSupervisor(factory LoopFactory, opts ...Option) *Supervisor {
	s := &Supervisor{
		entries:     make(map[types.ChannelID]*watchEntry),
		factory:     factory,
		stopTimeout: 10 * time.Second,
		log:         logging.Default().WithField("component", "registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a watch loop for the channel. A channel already being
// watched is left alone; the running loop's in-memory cursor stays ahead of
// whatever the durable record says.
func (s *Supervisor) Start(ch *models.MonitoredChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[ch.ChannelID]; ok {
		s.log.WithField("channel_id", ch.ChannelID).Debug("channel already watched")
		return nil
	}

	loop := s.factory(ch)
	s.entries[ch.ChannelID] = &watchEntry{name: ch.Name, loop: loop}
	go loop.Run()

	s.log.WithFields(map[string]interface{}{
		"channel_id": ch.ChannelID,
		"cursor":     ch.LastMsgID,
	}).Info("watching channel")
	return nil
}

// Stop halts the channel's watch loop and waits for it to exit.
func (s *Supervisor) Stop(channelID types.ChannelID) error {
	s.mu.Lock()
	entry, ok := s.entries[channelID]
	if ok {
		delete(s.entries, channelID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotWatched
	}

	entry.loop.Stop()
	select {
	case <-entry.loop.Done():
	case <-time.After(s.stopTimeout):
		s.log.WithField("channel_id", channelID).Warn("watch loop did not stop in time")
	}

	if s.persist != nil {
		s.persist(channelID, entry.loop.Cursor())
	}

	s.log.WithField("channel_id", channelID).Info("stopped watching channel")
	return nil
}

// StopAll halts every watch loop; used on shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]types.ChannelID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Stop(id)
	}
}

// RestoreAll starts watch loops for every persisted channel; called once at
// boot so watching resumes from the durable cursors.
func (s *Supervisor) RestoreAll(channels []*models.MonitoredChannel) {
	for _, ch := range channels {
		if err := s.Start(ch); err != nil {
			s.log.WithError(err).WithField("channel_id", ch.ChannelID).Error("failed to restore channel")
		}
	}
	s.log.WithField("count", len(channels)).Info("restored watched channels")
}

// Watching reports whether the channel has a running watch loop.
func (s *Supervisor) Watching(channelID types.ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[channelID]
	return ok
}

// List returns the supervised channels sorted by id.
func (s *Supervisor) List() []WatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]WatchStatus, 0, len(s.entries))
	for id, entry := range s.entries {
		statuses = append(statuses, WatchStatus{
			ChannelID: id,
			Name:      entry.name,
			Cursor:    entry.loop.Cursor(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ChannelID < statuses[j].ChannelID
	})
	return statuses
}
