package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"
)

func TestSplitHTMLRunsPlainText(t *testing.T) {
	runs := SplitHTMLRuns("just words")

	require.Len(t, runs, 1)
	assert.Equal(t, Run{Type: RunText, Text: "just words"}, runs[0])
}

func TestSplitHTMLRunsLineBreaks(t *testing.T) {
	runs := SplitHTMLRuns("line1<br>line2<br/>line3")

	require.Len(t, runs, 1)
	assert.Equal(t, "line1\nline2\nline3", runs[0].Text)
}

func TestSplitHTMLRunsLink(t *testing.T) {
	runs := SplitHTMLRuns(`before <a href="https://matrix.to/#/@bob:example.com">Bob</a> after`)

	require.Len(t, runs, 3)
	assert.Equal(t, Run{Type: RunText, Text: "before "}, runs[0])
	assert.Equal(t, Run{Type: RunLink, Text: "Bob", Target: "https://matrix.to/#/@bob:example.com"}, runs[1])
	assert.Equal(t, Run{Type: RunText, Text: " after"}, runs[2])
}

// Markup nested inside a link flattens to its plain text; styling is lost on
// purpose.
func TestSplitHTMLRunsNestedMarkupInLink(t *testing.T) {
	runs := SplitHTMLRuns(`<a href="x"><b>bold</b> and <i>slanted</i></a>`)

	require.Len(t, runs, 1)
	assert.Equal(t, RunLink, runs[0].Type)
	assert.Equal(t, "bold and slanted", runs[0].Text)
}

func TestSplitHTMLRunsEntities(t *testing.T) {
	runs := SplitHTMLRuns("fish &amp; chips")

	require.Len(t, runs, 1)
	assert.Equal(t, "fish & chips", runs[0].Text)
}

func TestSplitHTMLRunsNonLinkMarkupDropped(t *testing.T) {
	runs := SplitHTMLRuns("<strong>loud</strong> quiet")

	require.Len(t, runs, 1)
	assert.Equal(t, "loud quiet", runs[0].Text)
}

// An unterminated link degrades to plain text instead of failing.
func TestSplitHTMLRunsMalformed(t *testing.T) {
	runs := SplitHTMLRuns(`ok <a href="x">dangling`)

	require.Len(t, runs, 2)
	assert.Equal(t, Run{Type: RunText, Text: "ok "}, runs[0])
	assert.Equal(t, Run{Type: RunText, Text: "dangling"}, runs[1])
}

func TestSplitHTMLRunsEmpty(t *testing.T) {
	assert.Empty(t, SplitHTMLRuns(""))
}

func TestExtract(t *testing.T) {
	body := `ping <a href="https://matrix.to/#/@bob%3Aexample.com">Bob</a> and ` +
		`<a href="https://matrix.to/#/@alice%3Aexample.com">Alice</a>`

	got := Extract(body)

	assert.Equal(t, []id.UserID{"@bob:example.com", "@alice:example.com"}, got.UserIDs)
	assert.Equal(t, []string{"Bob", "Alice"}, got.Formatted)
	assert.False(t, got.Room)
}

func TestExtractDeduplicates(t *testing.T) {
	body := `<a href="https://matrix.to/#/@bob:example.com">Bob</a>` +
		`<a href="https://matrix.to/#/@bob:example.com">Bob</a>`

	got := Extract(body)

	assert.Equal(t, []id.UserID{"@bob:example.com"}, got.UserIDs)
	assert.Len(t, got.Formatted, 2)
}

// The room mention was never linked by construction, so it is found by a
// plain-text scan.
func TestExtractRoomMention(t *testing.T) {
	got := Extract(`@room see <a href="https://matrix.to/#/@bob:example.com">Bob</a>`)

	assert.True(t, got.Room)
	assert.Equal(t, []id.UserID{"@bob:example.com"}, got.UserIDs)
}

func TestExtractIgnoresForeignLinks(t *testing.T) {
	got := Extract(`see <a href="https://example.com/page">docs</a> and ` +
		`<a href="https://matrix.to/#/!room:example.com">a room</a>`)

	assert.Nil(t, got.UserIDs)
	assert.Nil(t, got.Formatted)
}

func TestExtractNoRoomTokenInsideEmail(t *testing.T) {
	got := Extract("mail root@room.example.com")

	assert.False(t, got.Room, "@ glued to preceding text is not a token")
}

func TestStripReply(t *testing.T) {
	body := `<mx-reply><blockquote><a href="https://matrix.to/#/!r:x/$e">In reply to</a>` +
		`<a href="https://matrix.to/#/@bob:x">Bob</a><br>quoted text</blockquote></mx-reply>` +
		`actual <b>reply</b>`

	assert.Equal(t, "actual <b>reply</b>", StripReply(body))
}

func TestStripReplyNoMarker(t *testing.T) {
	body := "no quoting here"
	assert.Equal(t, body, StripReply(body))
}

func TestStripReplyUnterminatedMarker(t *testing.T) {
	body := "<mx-reply>half open"
	assert.Equal(t, body, StripReply(body))
}

// Parse then Extract recovers the same mention data.
func TestParseExtractRoundTrip(t *testing.T) {
	p := Parse("hey @Bob Smith and @Alice about @room", testMembers)
	require.Equal(t, []id.UserID{"@bob2:example.com", "@alice:example.com"}, p.UserIDs)

	got := Extract(p.RichText)
	assert.Equal(t, p.UserIDs, got.UserIDs)
	assert.True(t, got.Room)
}
