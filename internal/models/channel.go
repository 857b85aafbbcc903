// Package models defines the persistent records of the channel mirror system.
package models

import (
	"time"

	"github.com/channel-mirror/internal/types"
)

// MonitoredChannel is the durable cursor-store record for one source channel.
// LastMsgID is the last sequence number fully processed; it never regresses.
type MonitoredChannel struct {
	ChannelID types.ChannelID `json:"channel_id"`
	Name      string          `json:"name"`
	AddedAt   time.Time       `json:"added_at"`
	LastMsgID types.MessageID `json:"last_msg_id"`
}

// BackfillJob describes one range-backfill session over a source channel.
// The range is normalized so StartID <= EndID before processing.
type BackfillJob struct {
	JobID     string          `json:"job_id"`
	ChannelID types.ChannelID `json:"channel_id"`
	Name      string          `json:"name"`
	StartID   types.MessageID `json:"start_id"`
	EndID     types.MessageID `json:"end_id"`
	StartedAt time.Time       `json:"started_at"`
}

// BackfillProgress is the advisory progress snapshot a running backfill
// publishes at its status cadence. It drives the HTTP progress endpoint and is
// never consulted for resumption.
type BackfillProgress struct {
	JobID     string             `json:"job_id"`
	ChannelID types.ChannelID    `json:"channel_id"`
	Name      string             `json:"name"`
	StartID   types.MessageID    `json:"start_id"`
	EndID     types.MessageID    `json:"end_id"`
	Current   types.MessageID    `json:"current"`
	Uploaded  int                `json:"uploaded"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	State     types.SessionState `json:"state"`
	Error     string             `json:"error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}
