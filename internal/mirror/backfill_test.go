package mirror

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/ratelimit"
	"github.com/channel-mirror/internal/retry"
	"github.com/channel-mirror/internal/testsupport"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

type recordingReporter struct {
	mu        sync.Mutex
	snapshots []*models.BackfillProgress
}

func (r *recordingReporter) Publish(_ context.Context, p *models.BackfillProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := *p
	r.snapshots = append(r.snapshots, &snapshot)
	return nil
}

func (r *recordingReporter) last() *models.BackfillProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func testJob(channel types.ChannelID, start, end types.MessageID) *models.BackfillJob {
	return &models.BackfillJob{
		JobID:     "job-test",
		ChannelID: channel,
		Name:      "test channel",
		StartID:   start,
		EndID:     end,
		StartedAt: time.Now().UTC(),
	}
}

func TestBackfillMixedRange(t *testing.T) {
	client := testsupport.NewFakeClient()
	// #100 photo, #101 text, #102 video, #103 service
	client.AddMessage(photoMessage("-1001", 100))
	client.AddMessage(&transport.Message{ID: 101, ChannelID: "-1001"})
	client.AddMessage(&transport.Message{ID: 102, ChannelID: "-1001", Media: &transport.Media{Kind: types.KindVideo}})
	client.AddMessage(&transport.Message{ID: 103, ChannelID: "-1001", Service: true})

	reporter := &recordingReporter{}
	p := NewProcessor(newTestPipeline(t, client, nil), reporter, 0)

	result, err := p.Run(context.Background(), testJob("-1001", 100, 103), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Uploaded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, types.MessageID(103), result.Cursor)

	last := reporter.last()
	require.NotNil(t, last)
	assert.Equal(t, types.SessionCompleted, last.State)
	assert.Equal(t, 2, last.Uploaded)
}

func TestBackfillNormalizesReversedRange(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddMessage(photoMessage("-1001", 10))
	client.AddMessage(photoMessage("-1001", 11))
	client.AddMessage(photoMessage("-1001", 12))

	p := NewProcessor(newTestPipeline(t, client, nil), nil, 0)

	result, err := p.Run(context.Background(), testJob("-1001", 12, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Uploaded)
	assert.Equal(t, types.MessageID(12), result.Cursor)

	// Ascending order regardless of how the bounds were given.
	assert.Equal(t, []types.MessageID{10, 11, 12}, client.Downloaded)
}

func TestBackfillSingleMessageRange(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddMessage(photoMessage("-1001", 5))

	p := NewProcessor(newTestPipeline(t, client, nil), nil, 0)

	result, err := p.Run(context.Background(), testJob("-1001", 5, 5), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, types.MessageID(5), result.Cursor)
}

func TestBackfillFailedItemAdvances(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddMessage(photoMessage("-1001", 1))
	client.AddMessage(photoMessage("-1001", 2))
	for i := 0; i < 3; i++ {
		client.QueueSendErr(apperrors.NewTransportError("send", assert.AnError))
	}

	p := NewProcessor(newTestPipeline(t, client, nil), nil, 0)

	result, err := p.Run(context.Background(), testJob("-1001", 1, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, types.MessageID(2), result.Cursor)
}

func TestBackfillCancelMidRange(t *testing.T) {
	client := testsupport.NewFakeClient()
	for id := types.MessageID(1); id <= 5; id++ {
		client.AddMessage(photoMessage("-1001", id))
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := NewProcessor(newTestPipeline(t, client, nil), nil, 50*time.Millisecond)

	done := make(chan struct{})
	var result *BackfillResult
	var runErr error
	go func() {
		defer close(done)
		result, runErr = p.Run(ctx, testJob("-1001", 1, 5), nil)
	}()

	// Give the walk a moment, then cancel mid-range.
	time.Sleep(75 * time.Millisecond)
	cancel()
	<-done

	assert.ErrorIs(t, runErr, context.Canceled)
	sent := client.SendCount()
	assert.Less(t, sent, 5)
	assert.Equal(t, sent, result.Uploaded)
}

func TestBackfillReportsRateLimitPauses(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.AddMessage(photoMessage("-1001", 100))
	client.QueueFetchErr(apperrors.NewRateLimited(time.Millisecond))

	log := logging.New(logging.LevelError, logging.FormatText)
	pauses := NewPauseNotifier()
	gov := ratelimit.NewGovernor(log, ratelimit.WithStatusFunc(pauses.Notify))
	tx := NewTransmitter(client, "-1009", types.ModeFreshReupload, t.TempDir())
	pipeline := NewPipeline(client, gov, tx, retry.Config{MaxAttempts: 2, Delay: time.Millisecond}, nil)

	var updates []string
	sink := StatusFunc(func(msg string) { updates = append(updates, msg) })

	p := NewProcessor(pipeline, nil, 0)
	p.NotifyPausesTo(pauses)

	result, err := p.Run(context.Background(), testJob("-1001", 100, 100), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)

	// The mandated wait reaches the session's status sink, not just the log.
	var pauseNotes int
	for _, msg := range updates {
		if strings.Contains(msg, "waiting") {
			pauseNotes++
		}
	}
	assert.Equal(t, 1, pauseNotes)

	// A finished run no longer receives pause notes.
	before := len(updates)
	pauses.Notify(time.Millisecond)
	assert.Len(t, updates, before)
}

func TestBackfillStatusCadence(t *testing.T) {
	client := testsupport.NewFakeClient()
	for id := types.MessageID(1); id <= 25; id++ {
		client.AddMessage(&transport.Message{ID: id, ChannelID: "-1001"})
	}

	var updates []string
	sink := StatusFunc(func(msg string) { updates = append(updates, msg) })

	p := NewProcessor(newTestPipeline(t, client, nil), nil, 0)
	_, err := p.Run(context.Background(), testJob("-1001", 1, 25), sink)
	require.NoError(t, err)

	// Entry note, one update per 10 items, final item, completion note.
	assert.Len(t, updates, 5)
}
