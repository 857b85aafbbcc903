package mirror

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/linkparse"
	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/ratelimit"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

// Watcher manages continuous watching of registered channels. The registry
// supervisor implements it.
type Watcher interface {
	Start(ch *models.MonitoredChannel) error
	Stop(channelID types.ChannelID) error
	Watching(channelID types.ChannelID) bool
}

// CursorStore persists the durable per-channel cursor.
type CursorStore interface {
	Upsert(ctx context.Context, ch *models.MonitoredChannel) error
}

// SessionRequest describes one mirror session. Start and End accept either a
// numeric message id or a message link; when links are used Channel may be
// empty and is derived from them.
type SessionRequest struct {
	Channel string `json:"channel"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Service orchestrates mirror sessions: it resolves the source channel, runs
// the range backfill, persists the cursor once the range completes, and hands
// the channel to the watcher.
type Service struct {
	client    transport.Client
	governor  *ratelimit.Governor
	processor *Processor
	store     CursorStore
	watcher   Watcher
	log       *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the session orchestrator.
func NewService(client transport.Client, governor *ratelimit.Governor, processor *Processor, store CursorStore, watcher Watcher) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		client:    client,
		governor:  governor,
		processor: processor,
		store:     store,
		watcher:   watcher,
		log:       logging.Default().WithField("component", "mirror_service"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartSession validates the request, resolves the channel, and launches the
// backfill in the background. The returned job carries the id used to follow
// progress.
func (s *Service) StartSession(ctx context.Context, req SessionRequest) (*models.BackfillJob, error) {
	channelRef, startID, endID, err := resolveBounds(req)
	if err != nil {
		return nil, err
	}

	var entity *transport.Entity
	err = s.governor.Guard(ctx, func() error {
		var resolveErr error
		entity, resolveErr = s.client.GetEntity(ctx, channelRef)
		return resolveErr
	})
	if err != nil {
		return nil, err
	}

	job := &models.BackfillJob{
		JobID:     uuid.NewString(),
		ChannelID: entity.ID,
		Name:      entity.Title,
		StartID:   startID,
		EndID:     endID,
		StartedAt: time.Now().UTC(),
	}

	s.wg.Add(1)
	go s.runSession(job)

	return job, nil
}

// runSession owns one session end to end. The durable cursor is written
// exactly once, after the range completes; a session that dies mid-range
// leaves the store untouched and a re-run walks the full range again.
func (s *Service) runSession(job *models.BackfillJob) {
	defer s.wg.Done()

	log := s.log.WithField("job_id", job.JobID).WithField("channel_id", job.ChannelID)
	sink := StatusFunc(func(msg string) {
		log.Info(msg)
	})

	result, err := s.processor.Run(s.ctx, job, sink)
	if err != nil {
		log.WithError(err).Error("session aborted")
		s.processor.PublishState(context.Background(), job, result, types.SessionFailed, err.Error())
		return
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch := &models.MonitoredChannel{
		ChannelID: job.ChannelID,
		Name:      job.Name,
		AddedAt:   time.Now().UTC(),
		LastMsgID: result.Cursor,
	}
	if err := s.store.Upsert(persistCtx, ch); err != nil {
		log.WithError(err).Error("failed to persist cursor, channel will not be watched")
		return
	}

	if err := s.watcher.Start(ch); err != nil {
		log.WithError(err).Error("failed to start watching channel")
		return
	}
	log.WithField("cursor", result.Cursor).Info("session complete, channel now watched")
}

// Shutdown cancels running sessions and waits for them to exit.
func (s *Service) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// resolveBounds turns the request's start/end forms into message ids and the
// channel reference the session resolves against.
func resolveBounds(req SessionRequest) (channelRef string, startID, endID types.MessageID, err error) {
	channelRef = strings.TrimSpace(req.Channel)

	startRef, startID, err := parseBound("start", req.Start)
	if err != nil {
		return "", 0, 0, err
	}
	endRef, endID, err := parseBound("end", req.End)
	if err != nil {
		return "", 0, 0, err
	}

	if startRef != "" && endRef != "" && startRef != endRef {
		return "", 0, 0, apperrors.NewValidationError("end", "start and end links reference different channels")
	}
	if linkRef := firstNonEmpty(startRef, endRef); linkRef != "" {
		if channelRef != "" && channelRef != linkRef {
			return "", 0, 0, apperrors.NewValidationError("channel", "channel does not match the message links")
		}
		channelRef = linkRef
	}
	if channelRef == "" {
		return "", 0, 0, apperrors.NewValidationError("channel", "channel is required when bounds are numeric ids")
	}

	return channelRef, startID, endID, nil
}

// parseBound accepts a message link or a bare positive integer.
func parseBound(name, value string) (channelRef string, id types.MessageID, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", 0, apperrors.NewValidationError(name, "required")
	}

	if strings.HasPrefix(value, "https://") {
		ref, parseErr := linkparse.Parse(value)
		if parseErr != nil {
			return "", 0, apperrors.NewValidationError(name, fmt.Sprintf("invalid message link: %v", parseErr))
		}
		return ref.ChannelRef, ref.MessageID, nil
	}

	n, parseErr := strconv.ParseInt(value, 10, 64)
	if parseErr != nil || n <= 0 {
		return "", 0, apperrors.NewValidationError(name, "must be a positive message id or a message link")
	}
	return "", types.MessageID(n), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
