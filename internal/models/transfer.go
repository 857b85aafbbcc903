package models

import (
	"time"

	"github.com/channel-mirror/internal/types"
)

// TransferEvent is one append-only audit row recording the terminal outcome of
// a processed message. Stored in ClickHouse; never read on the mirroring path.
type TransferEvent struct {
	ChannelID  types.ChannelID   `json:"channel_id"`
	MsgID      types.MessageID   `json:"msg_id"`
	Kind       types.MediaKind   `json:"kind"`
	Outcome    types.ItemOutcome `json:"outcome"`
	Detail     string            `json:"detail,omitempty"` // skip reason or failure summary
	Mode       string            `json:"mode,omitempty"`   // transmit mode for uploads
	OccurredAt time.Time         `json:"occurred_at"`
}
