package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

// Transmitter moves one eligible message's payload from a source channel into
// the target channel. The payload is staged on disk, re-sent, and the staged
// artifact is removed on every exit path.
type Transmitter struct {
	client  transport.Client
	target  string
	mode    types.TransmitMode
	tempDir string
	log     *logging.Logger
}

// NewTransmitter creates a transmitter sending into the given target channel.
func NewTransmitter(client transport.Client, target string, mode types.TransmitMode, tempDir string) *Transmitter {
	if tempDir == "" {
		tempDir = "temp_media"
	}
	return &Transmitter{
		client:  client,
		target:  target,
		mode:    mode,
		tempDir: tempDir,
		log:     logging.Default().WithField("component", "transmitter"),
	}
}

// Send downloads the message's payload and re-sends it to the target channel.
// Transport errors propagate to the caller, rate-limit condition included; the
// caller decides retry and pause policy.
func (t *Transmitter) Send(ctx context.Context, msg *transport.Message, kind types.MediaKind) error {
	if err := os.MkdirAll(t.tempDir, 0o750); err != nil {
		return apperrors.NewStorageError("stage", err)
	}

	path := filepath.Join(t.tempDir, stagedName(msg.ID, msg.Media, kind))
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.log.WithError(err).WithField("path", path).Warn("failed to remove staged artifact")
		}
	}()

	if err := t.client.DownloadMedia(ctx, msg, path); err != nil {
		return err
	}

	input := transport.SendInput{
		FileName:          filepath.Base(path),
		ForceDocument:     kind == types.KindDocument,
		SupportsStreaming: kind == types.KindVideo,
	}

	switch t.mode {
	case types.ModeForwardLike:
		input.Path = path
	default:
		// Fresh re-upload: raw bytes carry none of the source metadata.
		data, err := os.ReadFile(path)
		if err != nil {
			return apperrors.NewStorageError("stage", err)
		}
		input.Bytes = data
	}

	return t.client.SendFile(ctx, t.target, input)
}

// Mode returns the configured transmit mode.
func (t *Transmitter) Mode() types.TransmitMode {
	return t.mode
}

// stagedName builds a collision-free temp filename. Documents keep their
// declared extension so the re-upload preserves the file type.
func stagedName(id types.MessageID, media *transport.Media, kind types.MediaKind) string {
	ext := kind.Extension()
	if kind == types.KindDocument && media != nil && media.FileName != "" {
		if declared := filepath.Ext(media.FileName); declared != "" {
			ext = declared
		}
	}
	return fmt.Sprintf("media_%d_%s%s", id, uuid.NewString(), ext)
}
