package models

import (
	"time"
)

// Transaction types recorded in the monetization ledger. Every priced action
// in the platform is one of these.
const (
	TxTypeDMAccess      = "dm_access"
	TxTypeContentUnlock = "content_unlock"
	TxTypeSubscription  = "subscription"
)

// PlatformFeePercent is the global platform commission applied to every
// monetized action. Not configurable per transaction.
const PlatformFeePercent = 15

// FeeCents returns the platform fee for a gross amount. Integer division;
// the remainder cent stays with the payee.
func FeeCents(amountCents int64) int64 {
	return amountCents * PlatformFeePercent / 100
}

// Account is a user identity with a wallet balance. Balances are integer
// cents and never go negative.
type Account struct {
	ID                string    `json:"id" db:"id"`
	Username          string    `json:"username" db:"username"`
	DisplayName       string    `json:"display_name" db:"display_name"`
	BalanceCents      int64     `json:"balance_cents" db:"balance_cents"`
	TotalEarnedCents  int64     `json:"total_earned_cents" db:"total_earned_cents"`
	DMFeeCents        int64     `json:"dm_fee_cents" db:"dm_fee_cents"`
	DMPaymentRequired bool      `json:"dm_payment_required" db:"dm_payment_required"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Conversation is the thread between exactly two accounts. Its id is derived
// deterministically from the unordered participant pair, so two callers
// racing to start the same conversation converge on one row.
type Conversation struct {
	ID              string    `json:"id" db:"id"`
	InitiatorID     string    `json:"initiator_id" db:"initiator_id"`
	RecipientID     string    `json:"recipient_id" db:"recipient_id"`
	RatePerMsgCents int64     `json:"rate_per_msg_cents" db:"rate_per_msg_cents"`
	LastSeq         int64     `json:"last_seq" db:"last_seq"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Message belongs to exactly one conversation. Immutable once created except
// for the read flag. Seq is a server-assigned per-conversation monotonic
// counter; display order is (created_at, seq), so identical timestamps still
// order deterministically.
type Message struct {
	ID               string    `json:"id" db:"id"`
	ConversationID   string    `json:"conversation_id" db:"conversation_id"`
	SenderID         string    `json:"sender_id" db:"sender_id"`
	Body             string    `json:"body" db:"body"`
	Seq              int64     `json:"seq" db:"seq"`
	ReplyToMessageID *string   `json:"reply_to_message_id,omitempty" db:"reply_to_message_id"`
	ClientRef        *string   `json:"client_ref,omitempty" db:"client_ref"`
	IsRead           bool      `json:"is_read" db:"is_read"`
	IsCurrentUser    bool      `json:"is_current_user" db:"-"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// DMAccessGrant is a directed relation recording whether from currently has
// unlocked messaging rights with to. Sticky once purchased; updated in
// place, never deleted.
type DMAccessGrant struct {
	FromID    string    `json:"from_id" db:"from_id"`
	ToID      string    `json:"to_id" db:"to_id"`
	HasAccess bool      `json:"has_access" db:"has_access"`
	PaidCents int64     `json:"paid_cents" db:"paid_cents"`
	PostID    *string   `json:"post_id,omitempty" db:"post_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MonetizationTransaction is an immutable ledger entry for a priced action.
// The (payer, payee, type, reference) tuple is unique and serves as the
// idempotency key for charges.
type MonetizationTransaction struct {
	ID          string    `json:"id" db:"id"`
	PayerID     string    `json:"payer_id" db:"payer_id"`
	PayeeID     string    `json:"payee_id" db:"payee_id"`
	TxType      string    `json:"tx_type" db:"tx_type"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	FeeCents    int64     `json:"fee_cents" db:"fee_cents"`
	ReferenceID string    `json:"reference_id" db:"reference_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Subscription is a directed relation (subscriber -> creator). At most one
// live row per pair; renewals extend it in place.
type Subscription struct {
	SubscriberID string    `json:"subscriber_id" db:"subscriber_id"`
	CreatorID    string    `json:"creator_id" db:"creator_id"`
	AmountCents  int64     `json:"amount_cents" db:"amount_cents"`
	Tier         string    `json:"tier" db:"tier"`
	StartsAt     time.Time `json:"starts_at" db:"starts_at"`
	EndsAt       time.Time `json:"ends_at" db:"ends_at"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
