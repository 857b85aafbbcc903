package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/mirror"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/registry"
	"github.com/channel-mirror/internal/storage"
	"github.com/channel-mirror/internal/types"
)

type fakeSessions struct {
	job *models.BackfillJob
	err error
	got mirror.SessionRequest
}

func (f *fakeSessions) StartSession(_ context.Context, req mirror.SessionRequest) (*models.BackfillJob, error) {
	f.got = req
	return f.job, f.err
}

type fakeProgress struct {
	snapshots map[string]*models.BackfillProgress
}

func (f *fakeProgress) Get(_ context.Context, jobID string) (*models.BackfillProgress, error) {
	if p, ok := f.snapshots[jobID]; ok {
		return p, nil
	}
	return nil, storage.ErrProgressNotFound
}

type fakeChannels struct {
	channels []*models.MonitoredChannel
	deleted  []types.ChannelID
}

func (f *fakeChannels) List(context.Context) ([]*models.MonitoredChannel, error) {
	return f.channels, nil
}

func (f *fakeChannels) Delete(_ context.Context, id types.ChannelID) error {
	for _, ch := range f.channels {
		if ch.ChannelID == id {
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return storage.ErrChannelNotFound
}

type fakeWatches struct {
	watching map[types.ChannelID]bool
	stopped  []types.ChannelID
}

func (f *fakeWatches) Stop(id types.ChannelID) error {
	if !f.watching[id] {
		return registry.ErrNotWatched
	}
	delete(f.watching, id)
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeWatches) Watching(id types.ChannelID) bool {
	return f.watching[id]
}

func newTestServer(sessions SessionService, progress ProgressReader, channels ChannelStore, watches WatchRegistry) *Server {
	cfg := DefaultServerConfig("127.0.0.1", "0")
	cfg.ClientRPS = 1000
	return NewServer(cfg, sessions, progress, channels, watches)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakeSessions{}, &fakeProgress{}, &fakeChannels{}, &fakeWatches{})

	rec := doRequest(t, s, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestStartSessionEndpoint(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		sessions := &fakeSessions{job: &models.BackfillJob{
			JobID:     "job-1",
			ChannelID: "-1001",
			Name:      "Some Channel",
			StartID:   100,
			EndID:     200,
		}}
		s := newTestServer(sessions, &fakeProgress{}, &fakeChannels{}, &fakeWatches{})

		rec := doRequest(t, s, "POST", "/api/sessions",
			`{"channel":"some_channel","start":"100","end":"200"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		var job models.BackfillJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, "job-1", job.JobID)
		assert.Equal(t, "some_channel", sessions.got.Channel)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(&fakeSessions{}, &fakeProgress{}, &fakeChannels{}, &fakeWatches{})
		rec := doRequest(t, s, "POST", "/api/sessions", `{"channel":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation error", func(t *testing.T) {
		sessions := &fakeSessions{err: apperrors.NewValidationError("start", "required")}
		s := newTestServer(sessions, &fakeProgress{}, &fakeChannels{}, &fakeWatches{})
		rec := doRequest(t, s, "POST", "/api/sessions", `{"channel":"c"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unresolvable channel", func(t *testing.T) {
		sessions := &fakeSessions{err: apperrors.NewEntityResolutionError("nope", assert.AnError)}
		s := newTestServer(sessions, &fakeProgress{}, &fakeChannels{}, &fakeWatches{})
		rec := doRequest(t, s, "POST", "/api/sessions", `{"channel":"nope","start":"1","end":"2"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("platform throttled", func(t *testing.T) {
		sessions := &fakeSessions{err: apperrors.NewRateLimited(time.Minute)}
		s := newTestServer(sessions, &fakeProgress{}, &fakeChannels{}, &fakeWatches{})
		rec := doRequest(t, s, "POST", "/api/sessions", `{"channel":"c","start":"1","end":"2"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGetSessionEndpoint(t *testing.T) {
	progress := &fakeProgress{snapshots: map[string]*models.BackfillProgress{
		"job-1": {
			JobID:    "job-1",
			Current:  150,
			Uploaded: 40,
			State:    types.SessionRunning,
		},
	}}
	s := newTestServer(&fakeSessions{}, progress, &fakeChannels{}, &fakeWatches{})

	t.Run("found", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/sessions/job-1", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var p models.BackfillProgress
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, types.MessageID(150), p.Current)
		assert.Equal(t, types.SessionRunning, p.State)
	})

	t.Run("missing", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/sessions/no-such-job", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListChannelsEndpoint(t *testing.T) {
	channels := &fakeChannels{channels: []*models.MonitoredChannel{
		{ChannelID: "-1001", Name: "watched", LastMsgID: 100, AddedAt: time.Now()},
		{ChannelID: "-1002", Name: "dormant", LastMsgID: 50, AddedAt: time.Now()},
	}}
	watches := &fakeWatches{watching: map[types.ChannelID]bool{"-1001": true}}
	s := newTestServer(&fakeSessions{}, &fakeProgress{}, channels, watches)

	rec := doRequest(t, s, "GET", "/api/channels", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Channels []ChannelView `json:"channels"`
		Count    int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.True(t, body.Channels[0].Watching)
	assert.False(t, body.Channels[1].Watching)
}

func TestRemoveChannelEndpoint(t *testing.T) {
	t.Run("stops loop and deletes record", func(t *testing.T) {
		channels := &fakeChannels{channels: []*models.MonitoredChannel{
			{ChannelID: "-1001", Name: "watched", LastMsgID: 100},
		}}
		watches := &fakeWatches{watching: map[types.ChannelID]bool{"-1001": true}}
		s := newTestServer(&fakeSessions{}, &fakeProgress{}, channels, watches)

		rec := doRequest(t, s, "DELETE", "/api/channels/-1001", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []types.ChannelID{"-1001"}, watches.stopped)
		assert.Equal(t, []types.ChannelID{"-1001"}, channels.deleted)
	})

	t.Run("record without running loop", func(t *testing.T) {
		channels := &fakeChannels{channels: []*models.MonitoredChannel{
			{ChannelID: "-1002", Name: "dormant", LastMsgID: 50},
		}}
		s := newTestServer(&fakeSessions{}, &fakeProgress{}, channels, &fakeWatches{watching: map[types.ChannelID]bool{}})

		rec := doRequest(t, s, "DELETE", "/api/channels/-1002", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []types.ChannelID{"-1002"}, channels.deleted)
	})

	t.Run("unknown channel", func(t *testing.T) {
		s := newTestServer(&fakeSessions{}, &fakeProgress{}, &fakeChannels{}, &fakeWatches{watching: map[types.ChannelID]bool{}})
		rec := doRequest(t, s, "DELETE", "/api/channels/-9999", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
