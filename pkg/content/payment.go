package content

type PaymentStatus string

const (
	PaymentPushed    PaymentStatus = "pushed"
	PaymentRequested PaymentStatus = "requested"
	PaymentAccepted  PaymentStatus = "accepted"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentReceived  PaymentStatus = "received"
)

func validPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPushed, PaymentRequested, PaymentAccepted, PaymentRejected, PaymentCanceled, PaymentReceived:
		return true
	}
	return false
}

// Initiating reports whether s starts a payment chain. Only initiating events
// are rendered; the rest of the chain is folded onto them.
func (s PaymentStatus) Initiating() bool {
	return s == PaymentPushed || s == PaymentRequested
}

// Payment is one step of an ecash payment chain. All events of one logical
// payment share PaymentID; everything past PaymentID/Amount/Status is
// optional to stay compatible with older senders.
type Payment struct {
	Body                string        `json:"body"`
	Status              PaymentStatus `json:"status"`
	PaymentID           string        `json:"paymentId"`
	Amount              uint64        `json:"amount"`
	SenderID            string        `json:"senderId,omitempty"`
	RecipientID         string        `json:"recipientId,omitempty"`
	FederationID        string        `json:"federationId,omitempty"`
	BearerToken         string        `json:"bearerToken,omitempty"`
	SenderOperationID   string        `json:"senderOperationId,omitempty"`
	ReceiverOperationID string        `json:"receiverOperationId,omitempty"`

	// Consolidated marks a derived row produced by timeline consolidation.
	// Never sent on the wire.
	Consolidated bool `json:"-" mapstructure:"-"`
}

func (Payment) Kind() string { return MsgPayment }

type MultispendKind string

const (
	MultispendGroupInvitation       MultispendKind = "groupInvitation"
	MultispendGroupInvitationVote   MultispendKind = "groupInvitationVote"
	MultispendGroupInvitationCancel MultispendKind = "groupInvitationCancel"
	MultispendGroupReannounce       MultispendKind = "groupReannounce"
	MultispendDepositNotification   MultispendKind = "depositNotification"
	MultispendWithdrawalRequest     MultispendKind = "withdrawalRequest"
	MultispendWithdrawalResponse    MultispendKind = "withdrawalResponse"
)

func validMultispendKind(k MultispendKind) bool {
	switch k {
	case MultispendGroupInvitation, MultispendGroupInvitationVote, MultispendGroupInvitationCancel,
		MultispendGroupReannounce, MultispendDepositNotification, MultispendWithdrawalRequest,
		MultispendWithdrawalResponse:
		return true
	}
	return false
}

// GroupInvitation proposes a multi-signer group: the listed signers vote and
// the group finalizes once Threshold of them accept.
type GroupInvitation struct {
	Signers      []string `json:"signers"`
	Threshold    uint32   `json:"threshold"`
	FederationID string   `json:"federationId,omitempty"`
	ProposerID   string   `json:"proposerId,omitempty"`
}

// Multispend is a multi-party-spend event, further discriminated by
// MultispendKind. Which optional blocks are present depends on the sub-kind;
// validation only enforces the fields the sub-kind requires.
type Multispend struct {
	Body         string           `json:"body"`
	SubKind      MultispendKind   `json:"kind"`
	InvitationID string           `json:"invitationId,omitempty"`
	Invitation   *GroupInvitation `json:"invitation,omitempty"`
	Vote         string           `json:"vote,omitempty"`
	RequestID    string           `json:"requestId,omitempty"`
	Amount       uint64           `json:"amount,omitempty"`
	Accepted     bool             `json:"accepted,omitempty"`
	TxID         string           `json:"txid,omitempty"`
}

func (Multispend) Kind() string { return MsgMultispend }
