package discord

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{""}, splitMessage("", 10))

	chunks := splitMessage("aaaaaa\nbbbbbb", 10)
	assert.Equal(t, []string{"aaaaaa\n", "bbbbbb"}, chunks)

	long := strings.Repeat("x", 25)
	chunks = splitMessage(long, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestNewDiscord_RequiresChannel(t *testing.T) {
	_, err := NewDiscord(zap.NewNop(), Settings{Token: "x"})
	assert.Error(t, err)

	d, err := NewDiscord(zap.NewNop(), Settings{Token: "x", ChannelID: "123"})
	require.NoError(t, err)
	assert.Equal(t, "discord", d.Name())
}
