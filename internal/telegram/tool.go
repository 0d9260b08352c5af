package telegram

import "strings"

// legacy Markdown 只有这四个控制字符
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// escapeMarkdown 转义不可信文本，避免破坏消息格式
func escapeMarkdown(input string) string {
	return markdownEscaper.Replace(input)
}
