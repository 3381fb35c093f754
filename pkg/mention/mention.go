// Package mention handles the text to rich-text transform for @-mentions and
// its inverse: free text is scanned against a room's member directory and
// recognized tokens become matrix.to links; rich text authored by any
// compliant client can be scanned back into structured mention data.
package mention

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"maunium.net/go/mautrix/id"
)

// Member is one entry of the room member directory the parser matches
// against.
type Member struct {
	ID          id.UserID
	DisplayName string
}

// Parsed is the outcome of the forward transform. UserIDs is nil, not empty,
// when no user was mentioned: downstream payload preparation relies on the
// distinction to omit mention metadata from the wire entirely.
type Parsed struct {
	UserIDs  []id.UserID
	Room     bool
	RichText string
}

const (
	// maxTokenLen caps a candidate token at 64 runes past the @.
	maxTokenLen = 64

	linkPrefix = "https://matrix.to/#/"
)

// tokenDelims are the non-whitespace characters that bound a token.
const tokenDelims = "'’"

var roomTokens = []string{"everyone", "room"}

func isDelim(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(tokenDelims, r)
}

type candidate struct {
	name    string // trimmed match key, original case
	display string // visible link text
	user    id.UserID
}

func buildCandidates(members []Member) []candidate {
	out := make([]candidate, 0, len(members))
	for _, m := range members {
		name := strings.TrimSpace(m.DisplayName)
		display := name
		if name == "" {
			// no display name: match and render the localpart form
			local, _, err := m.ID.Parse()
			if err != nil || local == "" {
				continue
			}
			name = local
			display = "@" + m.ID.String()
		}
		if utf8.RuneCountInString(name) > maxTokenLen {
			continue
		}
		out = append(out, candidate{name: name, display: display, user: m.ID})
	}
	// longest-match-first; stable so directory order breaks ties
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i].name) > utf8.RuneCountInString(out[j].name)
	})
	return out
}

// Parse scans text for @-tokens against members and returns the structured
// mentions plus the rich-text body. Matching is case-insensitive and greedy:
// when two display names are viable at the same position the longer one
// wins. A token embedded in an email-like pattern is never recognized. The
// reserved @room/@everyone tokens set the room flag but stay plain text.
// All non-link output is HTML-escaped.
func Parse(text string, members []Member) Parsed {
	candidates := buildCandidates(members)

	var (
		rich  strings.Builder
		plain strings.Builder
		ids   []id.UserID
		seen  = make(map[id.UserID]bool)
		room  bool
	)

	flush := func() {
		if plain.Len() > 0 {
			rich.WriteString(html.EscapeString(plain.String()))
			plain.Reset()
		}
	}

	for i := 0; i < len(text); {
		if text[i] != '@' || !delimBefore(text, i) {
			r, n := utf8.DecodeRuneInString(text[i:])
			plain.WriteRune(r)
			i += n
			continue
		}

		rest := text[i+1:]

		if tok := matchRoomToken(rest); tok != "" {
			room = true
			plain.WriteString(text[i : i+1+len(tok)])
			i += 1 + len(tok)
			continue
		}

		matched := false
		for _, c := range candidates {
			if !foldPrefix(rest, c.name) || !delimAfter(rest, len(c.name)) {
				continue
			}
			flush()
			rich.WriteString(fmt.Sprintf(`<a href="%s%s">%s</a>`,
				linkPrefix, url.PathEscape(c.user.String()), html.EscapeString(c.display)))
			if !seen[c.user] {
				seen[c.user] = true
				ids = append(ids, c.user)
			}
			i += 1 + len(c.name)
			matched = true
			break
		}
		if !matched {
			plain.WriteByte('@')
			i++
		}
	}

	flush()

	return Parsed{UserIDs: ids, Room: room, RichText: rich.String()}
}

// Payload prepares the outgoing mention metadata. Returns nil when nothing
// was mentioned so the caller omits the fields from the wire entirely rather
// than sending empty values.
func (p Parsed) Payload() map[string]any {
	if len(p.UserIDs) == 0 && !p.Room {
		return nil
	}

	mentions := map[string]any{}
	if len(p.UserIDs) > 0 {
		users := make([]string, len(p.UserIDs))
		for i, u := range p.UserIDs {
			users[i] = u.String()
		}
		mentions["user_ids"] = users
	}
	if p.Room {
		mentions["room"] = true
	}

	return map[string]any{
		"mentions":       mentions,
		"format":         "rich",
		"formatted_body": p.RichText,
	}
}

// delimBefore reports whether position i starts a token: start of string or
// preceded by a delimiter. An @ glued to preceding text is the email case
// (local@domain.tld) and is never a token.
func delimBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isDelim(r)
}

func delimAfter(s string, n int) bool {
	if n >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[n:])
	return isDelim(r)
}

// foldPrefix reports whether s begins with name, case-insensitively.
func foldPrefix(s, name string) bool {
	return len(s) >= len(name) && strings.EqualFold(s[:len(name)], name)
}

// matchRoomToken returns the literal room-wide token at the start of rest,
// or "" when there is none.
func matchRoomToken(rest string) string {
	for _, tok := range roomTokens {
		if foldPrefix(rest, tok) && delimAfter(rest, len(tok)) {
			return rest[:len(tok)]
		}
	}
	return ""
}
