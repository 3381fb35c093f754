package timeline

import (
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/pkg/content"
)

type GroupStatus string

const (
	GroupActiveInvitation GroupStatus = "activeInvitation"
	GroupFinalized        GroupStatus = "finalized"
	GroupCanceled         GroupStatus = "canceled"
)

type GroupRole string

const (
	RoleProposer GroupRole = "proposer"
	RoleVoter    GroupRole = "voter"
	RoleMember   GroupRole = "member"
)

// MultispendGroup is the derived view of a multi-signer group proposal. It is
// rebuilt from the event log plus the authoritative status on every read so
// it can never drift from the underlying events.
type MultispendGroup struct {
	InvitationID string
	Proposer     id.UserID
	Signers      []id.UserID
	Threshold    uint32
	FederationID string
	Status       GroupStatus
}

// BuildGroup scans oldest to newest for the invitation identified by
// invitationID; the last groupInvitation event wins. Returns nil when the
// log holds no such invitation.
func BuildGroup(events []*Event, invitationID string, status GroupStatus) *MultispendGroup {
	var g *MultispendGroup

	for _, ev := range events {
		if ev == nil {
			continue
		}
		ms, ok := ev.Content.(content.Multispend)
		if !ok || ms.SubKind != content.MultispendGroupInvitation || ms.InvitationID != invitationID {
			continue
		}
		// validated invitations always carry the block; locally built ones
		// may not
		if ms.Invitation == nil {
			continue
		}

		signers := make([]id.UserID, 0, len(ms.Invitation.Signers))
		for _, s := range ms.Invitation.Signers {
			signers = append(signers, id.UserID(s))
		}

		proposer := id.UserID(ms.Invitation.ProposerID)
		if proposer == "" {
			proposer = ev.Sender
		}

		g = &MultispendGroup{
			InvitationID: invitationID,
			Proposer:     proposer,
			Signers:      signers,
			Threshold:    ms.Invitation.Threshold,
			FederationID: ms.Invitation.FederationID,
			Status:       status,
		}
	}

	return g
}

// RoleOf derives a user's role; roles are never stored.
func (g *MultispendGroup) RoleOf(user id.UserID) GroupRole {
	if user == g.Proposer {
		return RoleProposer
	}
	for _, s := range g.Signers {
		if s == user {
			return RoleVoter
		}
	}
	return RoleMember
}
