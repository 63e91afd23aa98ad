package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var (
	mdV1Re = regexp.MustCompile("[_*`\\[]")
	mdV2Re = regexp.MustCompile("[" + classOf(mdV2Specials) + "]")
)

// classOf backslash-escapes every rune of chars for use inside a regexp
// character class, so '-' is never read as a range.
func classOf(chars string) string {
	var b strings.Builder
	for _, r := range chars {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$0`), nil
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\$0`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// EscapeV2 escapes text for MarkdownV2 outside of code entities.
func EscapeV2(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2)
	return out
}

// EscapeCodeV2 escapes text placed inside a MarkdownV2 pre or code entity,
// where only backslash and backtick are special.
func EscapeCodeV2(text string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text)
}
