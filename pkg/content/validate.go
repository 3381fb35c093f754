package content

import (
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

var logger = logrus.NewEntry(logrus.StandardLogger())

func SetLogger(l *logrus.Entry) {
	logger = l
}

// UnknownBody is the placeholder text for a payload that carried no usable
// body of its own.
const UnknownBody = "Unable to display this message"

// Validate normalizes one raw payload into the closed Content set. It is
// total: any input, including nil or a non-object, yields a Content - a
// structural mismatch is logged and coerced to Unknown, never propagated,
// so one malformed event can't abort a timeline page.
//
// Unrecognized extra fields are deliberately ignored: newer senders may add
// optional fields and must still validate.
func Validate(raw any) Content {
	m, ok := raw.(map[string]any)
	if !ok || m == nil {
		logger.Debugf("validate: non-object payload %T", raw)
		return fallback(nil, "")
	}

	msgtype, _ := m["msgtype"].(string)

	switch msgtype {
	case MsgText:
		var c Text
		if decode(m, &c) && hasString(m, "body") {
			return c
		}
	case MsgNotice:
		var c Notice
		if decode(m, &c) && hasString(m, "body") {
			return c
		}
	case MsgEmote:
		var c Emote
		if decode(m, &c) && hasString(m, "body") {
			return c
		}
	case MsgImage:
		var c Image
		if decode(m, &c) && hasString(m, "body") && validFile(c.File) {
			return c
		}
	case MsgVideo:
		var c Video
		if decode(m, &c) && hasString(m, "body") && validFile(c.File) {
			return c
		}
	case MsgFile:
		var c File
		if decode(m, &c) && hasString(m, "body") && validFile(c.File) {
			return c
		}
	case MsgAudio:
		var c Audio
		if decode(m, &c) && hasString(m, "body") && validFile(c.File) {
			return c
		}
	case MsgPoll:
		var c Poll
		if decode(m, &c) && hasString(m, "body") && len(c.Answers) > 0 {
			return c
		}
	case MsgForm:
		var c Form
		if decode(m, &c) && hasString(m, "body") && c.Type != "" {
			return c
		}
	case MsgPayment:
		var c Payment
		if _, ok := m["amount"]; ok && decode(m, &c) && c.PaymentID != "" && validPaymentStatus(c.Status) {
			return c
		}
	case MsgMultispend:
		var c Multispend
		if decode(m, &c) && validMultispend(&c) {
			return c
		}
	}

	return fallback(m, msgtype)
}

func fallback(m map[string]any, msgtype string) Unknown {
	body := UnknownBody
	if m != nil {
		if s, ok := m["body"].(string); ok && s != "" {
			body = s
		}
		logger.WithFields(logrus.Fields{"msgtype": msgtype}).Debugf("validate: coerced payload to unknown: %#v", m)
	}
	return Unknown{MsgType: msgtype, Body: body, Raw: m}
}

func decode(m map[string]any, out any) bool {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return false
	}
	if err := dec.Decode(m); err != nil {
		logger.Debugf("validate: decode failed: %v", err)
		return false
	}
	return true
}

func hasString(m map[string]any, key string) bool {
	_, ok := m[key].(string)
	return ok
}

func validFile(f *EncryptedFile) bool {
	return f != nil && f.URL != "" && f.Key.Key != "" && f.IV != ""
}

func validMultispend(c *Multispend) bool {
	if !validMultispendKind(c.SubKind) {
		return false
	}
	switch c.SubKind {
	case MultispendGroupInvitation:
		return c.InvitationID != "" && c.Invitation != nil &&
			len(c.Invitation.Signers) > 0 && c.Invitation.Threshold > 0
	case MultispendGroupInvitationVote:
		return c.InvitationID != "" && c.Vote != ""
	case MultispendGroupInvitationCancel, MultispendGroupReannounce:
		return c.InvitationID != ""
	case MultispendDepositNotification:
		return c.TxID != ""
	case MultispendWithdrawalRequest:
		return c.RequestID != "" && c.Amount > 0
	case MultispendWithdrawalResponse:
		return c.RequestID != ""
	}
	return false
}
