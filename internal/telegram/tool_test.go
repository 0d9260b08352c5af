package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "invalid\\_transition: \\*x\\* \\[a] \\`id\\`", escapeMarkdown("invalid_transition: *x* [a] `id`"))
	assert.Equal(t, "plain text 1.5%", escapeMarkdown("plain text 1.5%"))
}
