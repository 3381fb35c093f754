package mention

import (
	stdhtml "html"
	"net/url"
	"strings"

	strip "github.com/grokify/html-strip-tags-go"
	"golang.org/x/net/html"
	"maunium.net/go/mautrix/id"
)

type RunType string

const (
	RunText RunType = "text"
	RunLink RunType = "link"
)

// Run is one flat segment of a restricted rich-text body. Target is only set
// for link runs.
type Run struct {
	Type   RunType
	Text   string
	Target string
}

// Extracted is the outcome of the reverse transform over a rich-text body.
type Extracted struct {
	UserIDs   []id.UserID
	Room      bool
	Formatted []string
}

// SplitHTMLRuns flattens a restricted rich-text body into a sequence of text
// and link runs. Line-break elements become literal newlines; markup nested
// inside a link is stripped down to its plain text, deliberately losing
// styling because only link-target identity and text matter here. Malformed
// input degrades to plain text runs, it never fails.
func SplitHTMLRuns(body string) []Run {
	z := html.NewTokenizer(strings.NewReader(body))

	var (
		runs   []Run
		text   strings.Builder
		inner  strings.Builder // raw markup between <a> and </a>
		href   string
		inLink bool
	)

	flushText := func() {
		if text.Len() > 0 {
			runs = append(runs, Run{Type: RunText, Text: text.String()})
			text.Reset()
		}
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			// EOF, or an unterminated link: degrade to text
			if inLink {
				text.WriteString(flattenInner(inner.String()))
			}
			flushText()
			return runs

		case html.TextToken:
			if inLink {
				inner.Write(z.Raw())
			} else {
				text.WriteString(string(z.Text()))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch {
			case inLink:
				inner.Write(z.Raw())
			case string(name) == "a":
				flushText()
				inLink = true
				href = tagHref(z, hasAttr)
				inner.Reset()
			case string(name) == "br":
				text.WriteString("\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "a" && inLink {
				inLink = false
				runs = append(runs, Run{Type: RunLink, Text: flattenInner(inner.String()), Target: href})
			} else if inLink {
				inner.Write(z.Raw())
			}
		}
	}
}

func tagHref(z *html.Tokenizer, hasAttr bool) string {
	for hasAttr {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val)
		}
		hasAttr = more
	}
	return ""
}

func flattenInner(raw string) string {
	return stdhtml.UnescapeString(strip.StripTags(raw))
}

// Extract recovers structured mention data from a rich-text body authored by
// any compliant client: user ids from the percent-decoded targets of mention
// links, and the room flag from a plain-text scan, since room mentions are
// never linked by construction.
func Extract(formattedBody string) Extracted {
	var out Extracted
	seen := make(map[id.UserID]bool)

	for _, run := range SplitHTMLRuns(formattedBody) {
		switch run.Type {
		case RunLink:
			user, ok := mentionTarget(run.Target)
			if !ok {
				continue
			}
			out.Formatted = append(out.Formatted, run.Text)
			if !seen[user] {
				seen[user] = true
				out.UserIDs = append(out.UserIDs, user)
			}
		case RunText:
			if hasRoomToken(run.Text) {
				out.Room = true
			}
		}
	}

	return out
}

func mentionTarget(href string) (id.UserID, bool) {
	if !strings.HasPrefix(href, linkPrefix) {
		return "", false
	}
	frag := href[len(linkPrefix):]
	if i := strings.IndexByte(frag, '?'); i >= 0 {
		frag = frag[:i]
	}
	dec, err := url.PathUnescape(frag)
	if err != nil {
		dec = frag
	}
	if !strings.HasPrefix(dec, "@") {
		return "", false
	}
	return id.UserID(dec), true
}

func hasRoomToken(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] == '@' && delimBefore(text, i) && matchRoomToken(text[i+1:]) != "" {
			return true
		}
	}
	return false
}

// StripReply removes the quoted-reply marker block from a rich-text body,
// returning only the actual reply. The surrounding markup is otherwise
// preserved; a body without a marker comes back unchanged.
func StripReply(formattedBody string) string {
	const openTag, closeTag = "<mx-reply>", "</mx-reply>"

	start := strings.Index(formattedBody, openTag)
	if start < 0 {
		return formattedBody
	}
	end := strings.Index(formattedBody[start:], closeTag)
	if end < 0 {
		return formattedBody
	}

	return formattedBody[:start] + formattedBody[start+end+len(closeTag):]
}
