// Package types provides common type definitions for the channel mirror system.
package types

import "fmt"

// ChannelID identifies a source channel on the platform. Numeric platform ids
// are carried in their string form so private-channel ids ("-100...") and
// public usernames share one representation.
type ChannelID string

// MessageID is the monotonically increasing per-channel message sequence number.
type MessageID int64

// MediaKind represents the payload type attached to a message.
type MediaKind string

const (
	// KindPhoto represents an image payload
	KindPhoto MediaKind = "photo"
	// KindVideo represents a video payload
	KindVideo MediaKind = "video"
	// KindDocument represents a generic file payload
	KindDocument MediaKind = "document"
	// KindOther represents media that is present but not downloadable (e.g. animated stickers)
	KindOther MediaKind = "other"
	// KindNone represents a message without media
	KindNone MediaKind = "none"
)

// Extension returns the filename extension used when staging a payload of this kind.
func (k MediaKind) Extension() string {
	switch k {
	case KindPhoto:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	default:
		return ".bin"
	}
}

// TransmitMode selects how the retransmitter re-uploads a downloaded payload.
type TransmitMode string

const (
	// ModeFreshReupload re-sends the raw bytes with original metadata and caption stripped
	ModeFreshReupload TransmitMode = "fresh_reupload"
	// ModeForwardLike re-sends directly from the downloaded file path (legacy behavior)
	ModeForwardLike TransmitMode = "forward_like"
)

// ParseTransmitMode parses a transmit mode string. An empty string selects the
// preferred fresh_reupload mode.
func ParseTransmitMode(s string) (TransmitMode, error) {
	switch TransmitMode(s) {
	case ModeFreshReupload, ModeForwardLike:
		return TransmitMode(s), nil
	case "":
		return ModeFreshReupload, nil
	default:
		return "", fmt.Errorf("unknown transmit mode: %q", s)
	}
}

// SkipReason explains why a message was not mirror-eligible.
type SkipReason string

const (
	// SkipServiceMessage covers platform service messages and absent messages
	SkipServiceMessage SkipReason = "service_message"
	// SkipNoMedia covers plain text messages
	SkipNoMedia SkipReason = "no_media"
	// SkipUnsupportedMediaKind covers link previews and generic unsupported payload wrappers
	SkipUnsupportedMediaKind SkipReason = "unsupported_media_kind"
	// SkipNotDownloadableKind covers media that is neither photo, video, nor document
	SkipNotDownloadableKind SkipReason = "not_downloadable_kind"
)

// ItemOutcome is the terminal classification of one processed message.
type ItemOutcome string

const (
	// OutcomeUploaded represents a successfully mirrored item
	OutcomeUploaded ItemOutcome = "uploaded"
	// OutcomeSkipped represents an ineligible item
	OutcomeSkipped ItemOutcome = "skipped"
	// OutcomeFailed represents an item that exhausted its retry budget
	OutcomeFailed ItemOutcome = "failed"
)

// SessionState represents the lifecycle of a mirror session's backfill phase.
type SessionState string

const (
	// SessionRunning represents a backfill walking its range
	SessionRunning SessionState = "running"
	// SessionCompleted represents a backfill that reached the end of its range
	SessionCompleted SessionState = "completed"
	// SessionFailed represents a backfill aborted before reaching the end of its range
	SessionFailed SessionState = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
