package linkparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channel-mirror/internal/types"
)

func TestParse(t *testing.T) {
	t.Run("public link", func(t *testing.T) {
		ref, err := Parse("https://t.me/some_channel/4521")
		require.NoError(t, err)
		assert.Equal(t, "some_channel", ref.ChannelRef)
		assert.Equal(t, types.MessageID(4521), ref.MessageID)
	})

	t.Run("private link gets channel marker", func(t *testing.T) {
		ref, err := Parse("https://t.me/c/1234567890/99")
		require.NoError(t, err)
		assert.Equal(t, "-1001234567890", ref.ChannelRef)
		assert.Equal(t, types.MessageID(99), ref.MessageID)
	})

	t.Run("surrounding whitespace tolerated", func(t *testing.T) {
		ref, err := Parse("  https://t.me/some_channel/7\n")
		require.NoError(t, err)
		assert.Equal(t, types.MessageID(7), ref.MessageID)
	})

	t.Run("rejects non-links", func(t *testing.T) {
		for _, link := range []string{
			"",
			"some_channel/4521",
			"http://t.me/some_channel/4521",
			"https://t.me/some_channel",
			"https://t.me/some_channel/abc",
			"https://example.com/some_channel/4521",
		} {
			_, err := Parse(link)
			assert.Error(t, err, "link %q", link)
		}
	})
}
