package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/channel-mirror/internal/mirror"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/registry"
	"github.com/channel-mirror/internal/storage"
	"github.com/channel-mirror/internal/types"
)

// ChannelView is one registry entry in the list response.
type ChannelView struct {
	ChannelID types.ChannelID `json:"channel_id"`
	Name      string          `json:"name"`
	AddedAt   string          `json:"added_at"`
	LastMsgID types.MessageID `json:"last_msg_id"`
	Watching  bool            `json:"watching"`
}

// handleStartSession launches a backfill-then-watch session.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req mirror.SessionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}

	job, err := s.sessions.StartSession(r.Context(), req)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusAccepted, job)
}

// handleGetSession returns the latest progress snapshot for a job.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	progress, err := s.progress.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrProgressNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "no progress recorded for this session", nil)
			return
		}
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

// handleListChannels returns the registry with live watching state.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.channels.List(r.Context())
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	views := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, channelView(ch, s.watches.Watching(ch.ChannelID)))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"channels": views,
		"count":    len(views),
	})
}

// handleRemoveChannel stops watching a channel and deletes its record.
func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(mux.Vars(r)["id"])

	// A record can exist without a running loop (e.g. the loop was never
	// restored); a missing loop is not an error here.
	if err := s.watches.Stop(channelID); err != nil && !errors.Is(err, registry.ErrNotWatched) {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	if err := s.channels.Delete(r.Context(), channelID); err != nil {
		if errors.Is(err, storage.ErrChannelNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "channel is not registered", nil)
			return
		}
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"channel_id": channelID,
		"removed":    true,
	})
}

func channelView(ch *models.MonitoredChannel, watching bool) ChannelView {
	return ChannelView{
		ChannelID: ch.ChannelID,
		Name:      ch.Name,
		AddedAt:   ch.AddedAt.UTC().Format(time.RFC3339),
		LastMsgID: ch.LastMsgID,
		Watching:  watching,
	}
}
