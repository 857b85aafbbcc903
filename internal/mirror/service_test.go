package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/ratelimit"
	"github.com/channel-mirror/internal/testsupport"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

type fakeStore struct {
	mu      sync.Mutex
	upserts []*models.MonitoredChannel
}

func (s *fakeStore) Upsert(_ context.Context, ch *models.MonitoredChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, ch)
	return nil
}

func (s *fakeStore) lastUpsert() *models.MonitoredChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.upserts) == 0 {
		return nil
	}
	return s.upserts[len(s.upserts)-1]
}

type fakeWatcher struct {
	mu      sync.Mutex
	started []types.ChannelID
}

func (w *fakeWatcher) Start(ch *models.MonitoredChannel) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = append(w.started, ch.ChannelID)
	return nil
}

func (w *fakeWatcher) Stop(types.ChannelID) error { return nil }

func (w *fakeWatcher) Watching(id types.ChannelID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, got := range w.started {
		if got == id {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, client *testsupport.FakeClient, store *fakeStore, watcher *fakeWatcher) *Service {
	t.Helper()
	log := logging.New(logging.LevelError, logging.FormatText)
	gov := ratelimit.NewGovernor(log)
	processor := NewProcessor(newTestPipeline(t, client, nil), nil, 0)
	svc := NewService(client, gov, processor, store, watcher)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestStartSessionRunsBackfillThenWatches(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddEntity("some_channel", &transport.Entity{ID: "-1001", Title: "Some Channel"})
	client.AddMessage(photoMessage("-1001", 100))
	client.AddMessage(&transport.Message{ID: 101, ChannelID: "-1001"})
	client.AddMessage(photoMessage("-1001", 102))

	store := &fakeStore{}
	watcher := &fakeWatcher{}
	svc := newTestService(t, client, store, watcher)

	job, err := svc.StartSession(context.Background(), SessionRequest{
		Channel: "some_channel",
		Start:   "100",
		End:     "102",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ChannelID("-1001"), job.ChannelID)
	assert.Equal(t, "Some Channel", job.Name)
	assert.NotEmpty(t, job.JobID)

	waitFor(t, func() bool { return watcher.Watching("-1001") }, "channel never handed to the watcher")

	ch := store.lastUpsert()
	require.NotNil(t, ch)
	assert.Equal(t, types.MessageID(102), ch.LastMsgID)
	assert.Equal(t, 2, client.SendCount())
}

func TestStartSessionAcceptsMessageLinks(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddEntity("some_channel", &transport.Entity{ID: "-1001", Title: "Some Channel"})
	client.AddMessage(photoMessage("-1001", 10))

	store := &fakeStore{}
	watcher := &fakeWatcher{}
	svc := newTestService(t, client, store, watcher)

	job, err := svc.StartSession(context.Background(), SessionRequest{
		Start: "https://t.me/some_channel/10",
		End:   "https://t.me/some_channel/10",
	})
	require.NoError(t, err)
	assert.Equal(t, types.MessageID(10), job.StartID)
	assert.Equal(t, types.MessageID(10), job.EndID)

	waitFor(t, func() bool { return watcher.Watching("-1001") }, "channel never handed to the watcher")
}

func TestStartSessionUnresolvableChannel(t *testing.T) {
	client := testsupport.NewFakeClient()
	svc := newTestService(t, client, &fakeStore{}, &fakeWatcher{})

	_, err := svc.StartSession(context.Background(), SessionRequest{
		Channel: "no_such_channel",
		Start:   "1",
		End:     "2",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsEntityError(err))
}

func TestResolveBoundsValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SessionRequest
	}{
		{"missing start", SessionRequest{Channel: "c", End: "2"}},
		{"missing end", SessionRequest{Channel: "c", Start: "1"}},
		{"numeric bounds without channel", SessionRequest{Start: "1", End: "2"}},
		{"zero id", SessionRequest{Channel: "c", Start: "0", End: "2"}},
		{"negative id", SessionRequest{Channel: "c", Start: "-5", End: "2"}},
		{"links from different channels", SessionRequest{
			Start: "https://t.me/chan_a/1",
			End:   "https://t.me/chan_b/2",
		}},
		{"channel conflicts with links", SessionRequest{
			Channel: "chan_b",
			Start:   "https://t.me/chan_a/1",
			End:     "https://t.me/chan_a/2",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := resolveBounds(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestResolveBoundsDerivesChannelFromLinks(t *testing.T) {
	ref, start, end, err := resolveBounds(SessionRequest{
		Start: "https://t.me/c/1234567890/5",
		End:   "https://t.me/c/1234567890/9",
	})
	require.NoError(t, err)
	assert.Equal(t, "-1001234567890", ref)
	assert.Equal(t, types.MessageID(5), start)
	assert.Equal(t, types.MessageID(9), end)
}

func TestServiceShutdownStopsSessions(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddEntity("some_channel", &transport.Entity{ID: "-1001", Title: "Some Channel"})
	for id := types.MessageID(1); id <= 50; id++ {
		client.AddMessage(photoMessage("-1001", id))
	}

	log := logging.New(logging.LevelError, logging.FormatText)
	gov := ratelimit.NewGovernor(log)
	processor := NewProcessor(newTestPipeline(t, client, nil), nil, 20*time.Millisecond)
	store := &fakeStore{}
	watcher := &fakeWatcher{}
	svc := NewService(client, gov, processor, store, watcher)

	_, err := svc.StartSession(context.Background(), SessionRequest{
		Channel: "some_channel",
		Start:   "1",
		End:     "50",
	})
	require.NoError(t, err)

	waitFor(t, func() bool { return client.SendCount() >= 1 }, "session never started")

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	// Aborted mid-range: the cursor store stays untouched.
	assert.Nil(t, store.lastUpsert())
	assert.False(t, watcher.Watching("-1001"))
}
