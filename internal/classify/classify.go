// Package classify decides mirror eligibility for fetched messages.
package classify

import (
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

// Decision is the eligibility verdict for one message. When Eligible is false,
// Reason names why; when true, Kind names the downloadable payload type.
type Decision struct {
	Eligible bool
	Kind     types.MediaKind
	Reason   types.SkipReason
}

// Classify inspects a fetched message and decides whether it carries a
// downloadable payload. A nil message covers the absent-message case, which is
// indistinguishable from a service message for mirroring purposes.
func Classify(msg *transport.Message) Decision {
	if msg == nil || msg.Service {
		return Decision{Reason: types.SkipServiceMessage}
	}
	if msg.Media == nil {
		return Decision{Reason: types.SkipNoMedia}
	}
	if msg.Media.Unsupported {
		return Decision{Reason: types.SkipUnsupportedMediaKind}
	}
	switch msg.Media.Kind {
	case types.KindPhoto, types.KindVideo, types.KindDocument:
		return Decision{Eligible: true, Kind: msg.Media.Kind}
	default:
		return Decision{Reason: types.SkipNotDownloadableKind}
	}
}
