// Package linkparse extracts channel and message references from platform
// message links.
package linkparse

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/types"
)

// messageLink matches both public (t.me/name/123) and private (t.me/c/123/456)
// message links.
var messageLink = regexp.MustCompile(`^https://t\.me/(c/)?([\w\d_]+)/(\d+)$`)

// Ref is a parsed message link.
type Ref struct {
	// ChannelRef is the channel reference in resolvable form: the public
	// username, or the "-100"-prefixed id for private links.
	ChannelRef string
	MessageID  types.MessageID
}

// Parse extracts the channel reference and message id from a message link.
func Parse(link string) (*Ref, error) {
	m := messageLink.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return nil, apperrors.NewValidationError("link", "not a recognized message link")
	}

	channelRef := m[2]
	if m[1] != "" {
		// Private links carry the bare internal id; the resolvable form
		// prepends the channel marker.
		if _, err := strconv.ParseInt(channelRef, 10, 64); err != nil {
			return nil, apperrors.NewValidationError("link", "private link id is not numeric")
		}
		channelRef = "-100" + channelRef
	}

	id, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil || id <= 0 {
		return nil, apperrors.NewValidationError("link", "message id is not a positive integer")
	}

	return &Ref{ChannelRef: channelRef, MessageID: types.MessageID(id)}, nil
}
