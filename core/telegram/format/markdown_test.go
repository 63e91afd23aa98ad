package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	got, err := EscapeMarkdown("Room 2 (east) - 09:00-10:00. Done!", MarkdownV2)
	require.NoError(t, err)
	require.Equal(t, `Room 2 \(east\) \- 09:00\-10:00\. Done\!`, got)

	require.Equal(t, `a\_b\*c\[d\]\~\`+"`"+`\>\#\+\=\|\{\}\\`, EscapeV2("a_b*c[d]~`>#+=|{}\\"))
	require.Equal(t, "ห้อง 1", EscapeV2("ห้อง 1"))
	require.Equal(t, "0123456789,/:;<", EscapeV2("0123456789,/:;<"))
}

func TestEscapeMarkdownV1(t *testing.T) {
	got, err := EscapeMarkdown("snake_case *bold* [link] `code`", MarkdownV1)
	require.NoError(t, err)
	require.Equal(t, "snake\\_case \\*bold\\* \\[link] \\`code\\`", got)

	_, err = EscapeMarkdown("x", 3)
	require.Error(t, err)
}

func TestEscapeCodeV2(t *testing.T) {
	require.Equal(t, "a\\\\b \\` c_d", EscapeCodeV2("a\\b ` c_d"))
}
