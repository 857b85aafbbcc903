// Package transport defines the platform capability surface the mirroring
// engine consumes. The concrete SDK binding lives behind the Client interface;
// the daemon ships an HTTP bridge implementation and the tests use a fake.
package transport

import (
	"context"

	"github.com/channel-mirror/internal/types"
)

// Entity is a resolved channel reference.
type Entity struct {
	ID    types.ChannelID `json:"id"`
	Title string          `json:"title"`
}

// Media describes the payload attached to a message.
type Media struct {
	Kind types.MediaKind `json:"kind"`
	// Unsupported marks link-preview and other wrapper payloads the platform
	// exposes as media but that carry nothing to download.
	Unsupported bool `json:"unsupported"`
	// FileName is the declared filename for documents; may be empty.
	FileName string `json:"file_name,omitempty"`
}

// Message is one fetched message from a source channel.
type Message struct {
	ID        types.MessageID `json:"id"`
	ChannelID types.ChannelID `json:"channel_id"`
	Service   bool            `json:"service"`
	Media     *Media          `json:"media,omitempty"` // nil when the message has no media
}

// SendInput describes one upload to the target channel. No caption field
// exists: mirrored items are always sent caption-free.
type SendInput struct {
	// Path is the staged artifact on disk; used when Bytes is nil.
	Path string
	// Bytes, when non-nil, is sent instead of the file at Path. This is the
	// fresh-reupload path: raw bytes carry none of the source metadata.
	Bytes    []byte
	FileName string
	// ForceDocument false requests non-document presentation for photo/video.
	ForceDocument bool
	// SupportsStreaming requests streaming-capable encapsulation for video.
	SupportsStreaming bool
}

// Client is the transport capability surface. Every call may fail with the
// rate-limit condition (errors.RateLimitedError) carrying the mandated wait;
// callers resolve it through the rate governor.
type Client interface {
	// GetEntity resolves a channel reference (username, numeric id, or link
	// target) to its canonical id and title.
	GetEntity(ctx context.Context, ref string) (*Entity, error)

	// GetMessage fetches a single message by sequence number. Returns
	// (nil, nil) when the message does not exist.
	GetMessage(ctx context.Context, channel types.ChannelID, id types.MessageID) (*Message, error)

	// GetLatestMessage fetches the most recent message of a channel. Returns
	// (nil, nil) when the channel is empty.
	GetLatestMessage(ctx context.Context, channel types.ChannelID) (*Message, error)

	// DownloadMedia downloads the message's payload to the given local path.
	DownloadMedia(ctx context.Context, msg *Message, path string) error

	// SendFile uploads one artifact to the target channel.
	SendFile(ctx context.Context, target string, input SendInput) error
}
