package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"
)

var testMembers = []Member{
	{ID: "@bob:example.com", DisplayName: "Bob"},
	{ID: "@bob2:example.com", DisplayName: "Bob Smith"},
	{ID: "@alice:example.com", DisplayName: "Alice"},
	{ID: "@noname:example.com"},
}

func TestParseSimpleMention(t *testing.T) {
	p := Parse("hi @Alice !", testMembers)

	assert.Equal(t, []id.UserID{"@alice:example.com"}, p.UserIDs)
	assert.False(t, p.Room)
	assert.Equal(t, `hi <a href="https://matrix.to/#/@alice:example.com">Alice</a> !`, p.RichText)
}

// The longer multi-word display name wins over the shorter prefix.
func TestParseGreedyLongestMatch(t *testing.T) {
	p := Parse("ping @Bob Smith", testMembers)

	assert.Equal(t, []id.UserID{"@bob2:example.com"}, p.UserIDs)
	assert.Equal(t, `ping <a href="https://matrix.to/#/@bob2:example.com">Bob Smith</a>`, p.RichText)
}

func TestParseShorterNameStillMatches(t *testing.T) {
	p := Parse("ping @Bob please", testMembers)

	assert.Equal(t, []id.UserID{"@bob:example.com"}, p.UserIDs)
}

func TestParseCaseInsensitive(t *testing.T) {
	p := Parse("hey @aLiCe", testMembers)

	assert.Equal(t, []id.UserID{"@alice:example.com"}, p.UserIDs)
	assert.Contains(t, p.RichText, ">Alice</a>", "link text uses the directory display name")
}

func TestParseEmailNotAMention(t *testing.T) {
	p := Parse("email me at test@host.com", testMembers)

	assert.Nil(t, p.UserIDs)
	assert.False(t, p.Room)
	assert.Equal(t, "email me at test@host.com", p.RichText)
}

func TestParseRoomMention(t *testing.T) {
	for _, text := range []string{"@room update", "@ROOM update", "@everyone update", "@Everyone update"} {
		p := Parse(text, testMembers)
		assert.True(t, p.Room, text)
		assert.Nil(t, p.UserIDs, text)
		assert.NotContains(t, p.RichText, "<a ", "room mention is never a link")
		assert.Equal(t, text, p.RichText, "token stays plain text")
	}
}

func TestParseUnknownTokenLeftAlone(t *testing.T) {
	p := Parse("cc @nobody on this", testMembers)

	assert.Nil(t, p.UserIDs)
	assert.Equal(t, "cc @nobody on this", p.RichText)
}

func TestParseDeduplicates(t *testing.T) {
	p := Parse("@Alice and again @Alice", testMembers)

	assert.Equal(t, []id.UserID{"@alice:example.com"}, p.UserIDs)
	// both occurrences still render as links
	assert.Equal(t, 2, countSubstr(p.RichText, "<a href="))
}

func TestParseOrderOfFirstAppearance(t *testing.T) {
	p := Parse("@Bob then @Alice then @Bob", testMembers)

	assert.Equal(t, []id.UserID{"@bob:example.com", "@alice:example.com"}, p.UserIDs)
}

func TestParseEscapesPlainText(t *testing.T) {
	p := Parse("1 < 2 & \"so\" @Alice", testMembers)

	assert.Contains(t, p.RichText, "1 &lt; 2 &amp;")
	assert.Contains(t, p.RichText, `<a href="https://matrix.to/#/@alice:example.com">Alice</a>`)
}

func TestParseNoDisplayNameFallsBackToLocalpart(t *testing.T) {
	p := Parse("hello @noname", testMembers)

	require.Equal(t, []id.UserID{"@noname:example.com"}, p.UserIDs)
	assert.Contains(t, p.RichText, ">@noname:example.com</a>", "visible text falls back to @identifier")
}

func TestParseApostropheDelimiter(t *testing.T) {
	p := Parse("@Alice's idea", testMembers)

	assert.Equal(t, []id.UserID{"@alice:example.com"}, p.UserIDs)
	assert.Contains(t, p.RichText, ">Alice</a>&#39;s idea")
}

func TestParseMidwordAtIgnored(t *testing.T) {
	p := Parse("snailmail@Alice", testMembers)

	assert.Nil(t, p.UserIDs)
}

func TestPayloadOmittedWhenNoMentions(t *testing.T) {
	p := Parse("plain text", testMembers)
	assert.Nil(t, p.Payload(), "no mention metadata goes on the wire at all")
}

func TestPayloadUserMentions(t *testing.T) {
	p := Parse("hi @Alice", testMembers)

	payload := p.Payload()
	require.NotNil(t, payload)
	assert.Equal(t, "rich", payload["format"])
	assert.Equal(t, p.RichText, payload["formatted_body"])

	mentions, ok := payload["mentions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"@alice:example.com"}, mentions["user_ids"])
	_, hasRoom := mentions["room"]
	assert.False(t, hasRoom, "room key omitted when false")
}

func TestPayloadRoomOnly(t *testing.T) {
	p := Parse("@room heads up", testMembers)

	payload := p.Payload()
	require.NotNil(t, payload)

	mentions := payload["mentions"].(map[string]any)
	assert.Equal(t, true, mentions["room"])
	_, hasUsers := mentions["user_ids"]
	assert.False(t, hasUsers, "user_ids omitted when empty")
}

func countSubstr(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
