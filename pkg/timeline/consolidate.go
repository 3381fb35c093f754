package timeline

import (
	"github.com/sirupsen/logrus"

	"github.com/chatlab/fedisync/pkg/content"
)

var logger = logrus.NewEntry(logrus.StandardLogger())

func SetLogger(l *logrus.Entry) {
	logger = l
}

// ConsolidatePayments folds a payment chain down to one rendered row per
// payment id. The timeline is an append-only log, so a single logical
// payment shows up as a series of events sharing a PaymentID; the chat
// surface must show the initiating event only, overlaid with the mutable
// fields of whichever event in the full input is latest for that id.
//
// Input is ordered oldest to newest. Non-payment events pass through
// unchanged; payment events that don't initiate their chain are dropped. A
// payment id with no initiating event at all yields no row. The function is
// pure and idempotent; it is recomputed on every timeline read, never cached.
func ConsolidatePayments(events []*Event) []*Event {
	latest := make(map[string]*content.Payment)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if p, ok := ev.Content.(content.Payment); ok {
			cp := p
			latest[p.PaymentID] = &cp
		}
	}

	out := make([]*Event, 0, len(events))
	seen := make(map[string]bool)

	for _, ev := range events {
		if ev == nil {
			out = append(out, ev)
			continue
		}
		p, ok := ev.Content.(content.Payment)
		if !ok {
			out = append(out, ev)
			continue
		}

		// A consolidated row stays canonical even when a previous fold
		// already overlaid a terminal status onto it.
		if !p.Status.Initiating() && !p.Consolidated {
			continue
		}

		seen[p.PaymentID] = true

		l := latest[p.PaymentID]
		merged := p
		merged.Status = l.Status
		merged.BearerToken = l.BearerToken
		merged.SenderOperationID = l.SenderOperationID
		merged.ReceiverOperationID = l.ReceiverOperationID
		merged.Consolidated = true

		copied := *ev
		copied.Content = merged
		out = append(out, &copied)
	}

	for paymentID := range latest {
		if !seen[paymentID] {
			logger.Debugf("consolidate: payment %s has no initiating event, dropped", paymentID)
		}
	}

	return out
}

// FilterMultispend drops the multi-party-spend sub-kinds that are never
// rendered individually: their effect is reflected by recomputing group and
// withdrawal status from the authoritative status query instead.
func FilterMultispend(events []*Event) []*Event {
	out := make([]*Event, 0, len(events))
	for _, ev := range events {
		if ev != nil {
			if ms, ok := ev.Content.(content.Multispend); ok && hiddenMultispend(ms.SubKind) {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

func hiddenMultispend(k content.MultispendKind) bool {
	switch k {
	case content.MultispendGroupReannounce,
		content.MultispendGroupInvitationCancel,
		content.MultispendWithdrawalResponse,
		content.MultispendGroupInvitationVote:
		return true
	}
	return false
}
