// Package paymaster defines the request and response types of the paymaster
// HTTP API, shared between the service handlers and the Go client.
package paymaster

import (
	"paypadm/core/pkg/models"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResolveConversationRequest asks for the conversation between two accounts.
// Order of a and b does not matter.
type ResolveConversationRequest struct {
	A string `json:"a" binding:"required"`
	B string `json:"b" binding:"required"`
}

// ResolveConversationResponse returns the canonical conversation identity
type ResolveConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	InitiatorID    string `json:"initiator_id"`
	RecipientID    string `json:"recipient_id"`
}

// SendMessageRequest appends a message to a conversation. RecipientID lets
// the service lazily create the conversation on first contact; ClientRef is
// the client correlation id echoed back on the realtime stream.
type SendMessageRequest struct {
	SenderID         string  `json:"sender_id" binding:"required"`
	RecipientID      string  `json:"recipient_id,omitempty"`
	Body             string  `json:"body" binding:"required"`
	ReplyToMessageID *string `json:"reply_to_message_id,omitempty"`
	ClientRef        *string `json:"client_ref,omitempty"`
}

// PaymentRequiredResponse is returned with HTTP 402 when the access gate
// denies a send or a charge fails on funds.
type PaymentRequiredResponse struct {
	Error            string `json:"error"`
	RequiredFeeCents int64  `json:"required_fee_cents"`
}

// ListMessagesResponse is one page of conversation history, oldest first.
// A short page (len < requested limit) means no more history.
type ListMessagesResponse struct {
	Messages   []models.Message `json:"messages"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

// MarkReadRequest marks the counterpart's messages as read
type MarkReadRequest struct {
	ReaderID string `json:"reader_id" binding:"required"`
}

// CheckAccessResponse reports whether from may message to, and the fee
// required if not
type CheckAccessResponse struct {
	HasAccess        bool  `json:"has_access"`
	RequiredFeeCents int64 `json:"required_fee_cents"`
}

// ChargeRequest moves balance from payer to payee for a priced action
type ChargeRequest struct {
	PayerID       string  `json:"payer_id" binding:"required"`
	PayeeID       string  `json:"payee_id" binding:"required"`
	AmountCents   int64   `json:"amount_cents" binding:"required"`
	ReferenceType string  `json:"reference_type" binding:"required"`
	ReferenceID   string  `json:"reference_id" binding:"required"`
	PostID        *string `json:"post_id,omitempty"`
	Tier          string  `json:"tier,omitempty"`
	PeriodDays    int     `json:"period_days,omitempty"`
}

// ChargeResponse reports the outcome of a charge
type ChargeResponse struct {
	Success        bool  `json:"success"`
	AlreadyApplied bool  `json:"already_applied"`
	FeeCents       int64 `json:"fee_cents"`
	NetCents       int64 `json:"net_cents"`
}

// BalanceResponse reports an account's wallet state
type BalanceResponse struct {
	AccountID        string `json:"account_id"`
	BalanceCents     int64  `json:"balance_cents"`
	TotalEarnedCents int64  `json:"total_earned_cents"`
}

// HeartbeatRequest reports a user as online
type HeartbeatRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// PresenceResponse maps user ids to online state
type PresenceResponse struct {
	Online map[string]bool `json:"online"`
}

// CreateAccountRequest provisions an account (admin surface)
type CreateAccountRequest struct {
	Username          string `json:"username" binding:"required"`
	DisplayName       string `json:"display_name,omitempty"`
	BalanceCents      int64  `json:"balance_cents,omitempty"`
	DMFeeCents        int64  `json:"dm_fee_cents,omitempty"`
	DMPaymentRequired bool   `json:"dm_payment_required,omitempty"`
}

// CreditAccountRequest tops up an account balance (admin surface)
type CreditAccountRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required"`
}
