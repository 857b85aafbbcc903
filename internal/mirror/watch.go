package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

// WatchLoop continuously polls one source channel for messages newer than its
// cursor and mirrors the eligible ones. The cursor lives in memory only: it
// advances to the scanned high-water mark after each full scan and a restart
// re-seeds it from the durable store's backfill cursor.
type WatchLoop struct {
	channel      types.ChannelID
	name         string
	client       transport.Client
	pipeline     *Pipeline
	pollInterval time.Duration
	itemDelay    time.Duration
	log          *logging.Logger

	mu     sync.Mutex
	cursor types.MessageID

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatchLoop creates a watch loop starting from the given cursor.
func NewWatchLoop(channel types.ChannelID, name string, cursor types.MessageID, client transport.Client, pipeline *Pipeline, pollInterval, itemDelay time.Duration) *WatchLoop {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &WatchLoop{
		channel:      channel,
		name:         name,
		client:       client,
		pipeline:     pipeline,
		pollInterval: pollInterval,
		itemDelay:    itemDelay,
		cursor:       cursor,
		log: logging.Default().WithFields(map[string]interface{}{
			"component":  "watch",
			"channel_id": channel,
		}),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run polls until Stop is called. Poll errors are logged and the loop keeps
// going; a failing platform never kills the watcher.
func (w *WatchLoop) Run() {
	defer close(w.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stopCh
		cancel()
	}()

	w.log.WithField("cursor", w.Cursor()).Info("watch loop started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.log.Info("watch loop stopped")
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// Stop signals the loop to exit. Safe to call once.
func (w *WatchLoop) Stop() {
	close(w.stopCh)
}

// Done is closed when the loop has fully exited.
func (w *WatchLoop) Done() <-chan struct{} {
	return w.doneCh
}

// Cursor returns the in-memory high-water mark.
func (w *WatchLoop) Cursor() types.MessageID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

func (w *WatchLoop) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// scan checks for messages beyond the cursor and mirrors them in order. The
// cursor only advances after the whole batch is resolved, so a stop mid-batch
// leaves it untouched and the next session re-examines the tail.
func (w *WatchLoop) scan(ctx context.Context) {
	var latest *transport.Message
	err := w.pipeline.governor.Guard(ctx, func() error {
		var fetchErr error
		latest, fetchErr = w.client.GetLatestMessage(ctx, w.channel)
		return fetchErr
	})
	if err != nil {
		if ctx.Err() == nil {
			w.log.WithError(err).Warn("failed to fetch latest message")
		}
		return
	}
	if latest == nil {
		return
	}

	cursor := w.Cursor()
	if latest.ID <= cursor {
		return
	}

	w.log.WithFields(map[string]interface{}{
		"cursor": cursor,
		"latest": latest.ID,
	}).Info("new messages detected")

	for id := cursor + 1; id <= latest.ID; id++ {
		if w.stopped() {
			return
		}

		w.pipeline.Process(ctx, w.channel, id)

		if id < latest.ID && w.itemDelay > 0 {
			select {
			case <-time.After(w.itemDelay):
			case <-w.stopCh:
				return
			}
		}
	}

	w.mu.Lock()
	if latest.ID > w.cursor {
		w.cursor = latest.ID
	}
	w.mu.Unlock()
}
