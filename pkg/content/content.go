// Package content models the closed set of chat event payload shapes and
// normalizes raw bridge payloads into them. Anything structurally
// incompatible degrades to Unknown instead of failing the timeline.
package content

// MsgType discriminates the wire shape of an event payload.
const (
	MsgText       = "m.text"
	MsgNotice     = "m.notice"
	MsgEmote      = "m.emote"
	MsgImage      = "m.image"
	MsgVideo      = "m.video"
	MsgFile       = "m.file"
	MsgAudio      = "m.audio"
	MsgPoll       = "m.poll"
	MsgForm       = "form"
	MsgPayment    = "payment"
	MsgMultispend = "multispend"
)

// Content is one validated event payload. Kind returns the msgtype
// discriminant; Unknown reports the original msgtype when it carried one.
type Content interface {
	Kind() string
}

// Text is a plain text message. FormattedBody carries the rich-text
// rendition when Format is set, including mention links.
type Text struct {
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

func (Text) Kind() string { return MsgText }

// Notice is automated text (bots, bridges); rendered without highlight.
type Notice struct {
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

func (Notice) Kind() string { return MsgNotice }

// Emote is third-person text ("/me ...").
type Emote struct {
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

func (Emote) Kind() string { return MsgEmote }

// JSONWebKey is the decryption key of an encrypted attachment.
type JSONWebKey struct {
	KeyType   string   `json:"kty"`
	KeyOps    []string `json:"key_ops,omitempty"`
	Algorithm string   `json:"alg"`
	Key       string   `json:"k"`
	Ext       bool     `json:"ext,omitempty"`
}

// EncryptedFile describes an encrypted attachment: where to fetch it and how
// to decrypt and verify it.
type EncryptedFile struct {
	URL     string            `json:"url"`
	Key     JSONWebKey        `json:"key"`
	IV      string            `json:"iv"`
	Hashes  map[string]string `json:"hashes"`
	Version string            `json:"v"`
}

// AttachmentInfo carries optional renderer hints; every field may be absent.
type AttachmentInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

type Image struct {
	Body string          `json:"body"`
	File *EncryptedFile  `json:"file"`
	Info *AttachmentInfo `json:"info,omitempty"`
}

func (Image) Kind() string { return MsgImage }

type Video struct {
	Body string          `json:"body"`
	File *EncryptedFile  `json:"file"`
	Info *AttachmentInfo `json:"info,omitempty"`
}

func (Video) Kind() string { return MsgVideo }

type File struct {
	Body string          `json:"body"`
	File *EncryptedFile  `json:"file"`
	Info *AttachmentInfo `json:"info,omitempty"`
}

func (File) Kind() string { return MsgFile }

type Audio struct {
	Body string          `json:"body"`
	File *EncryptedFile  `json:"file"`
	Info *AttachmentInfo `json:"info,omitempty"`
}

func (Audio) Kind() string { return MsgAudio }

type PollAnswer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Poll carries the answers plus the per-user votes. Votes map a user id to
// the answer ids they picked; hidden until Disclosed for undisclosed polls.
type Poll struct {
	Body      string              `json:"body"`
	Answers   []PollAnswer        `json:"answers"`
	Votes     map[string][]string `json:"votes,omitempty"`
	Disclosed bool                `json:"disclosed,omitempty"`
	EndTime   int64               `json:"end_time,omitempty"`
}

func (Poll) Kind() string { return MsgPoll }

type FormOption struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Form is a scripted-interaction prompt (buttons, text input) sent by a
// service user.
type Form struct {
	Body    string       `json:"body"`
	Type    string       `json:"type"`
	Options []FormOption `json:"options,omitempty"`
	Value   string       `json:"value,omitempty"`
}

func (Form) Kind() string { return MsgForm }

// Unknown is the graceful-degradation fallback: the original payload is kept
// for diagnostics and forward compatibility, Body carries whatever
// human-readable text could be pulled out of it.
type Unknown struct {
	MsgType string
	Body    string
	Raw     map[string]any
}

func (Unknown) Kind() string { return "unknown" }
