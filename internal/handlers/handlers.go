// Package handlers wires the HTTP surface of the paymaster service: message
// send/list, access checks, charges, balances, presence, and the websocket
// upgrade. Mutations publish events to Kafka; every replica consumes the
// topic and fans events out to its own websocket clients.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"paypadm/core/internal/access"
	"paypadm/core/internal/conversation"
	"paypadm/core/internal/ledger"
	"paypadm/core/internal/messages"
	"paypadm/core/internal/metrics"
	"paypadm/core/internal/presence"
	"paypadm/core/internal/websocket"
	api "paypadm/core/pkg/api/paymaster"
	"paypadm/core/pkg/kafka"
	"paypadm/core/pkg/logging"
	"paypadm/core/pkg/pagination"
)

// EventPublisher publishes service events to the monetization topic.
type EventPublisher interface {
	PublishEvent(event *kafka.Event) error
}

// PaymasterHandlers contains the HTTP handlers for the service
type PaymasterHandlers struct {
	store     *messages.Store
	gate      *access.Gate
	ledger    *ledger.Coordinator
	presence  *presence.Tracker
	hub       *websocket.Hub
	producer  EventPublisher
	logger    logging.Logger
	metrics   *metrics.Metrics
	startTime time.Time
}

// NewPaymasterHandlers creates a new handlers instance
func NewPaymasterHandlers(
	store *messages.Store,
	gate *access.Gate,
	coordinator *ledger.Coordinator,
	tracker *presence.Tracker,
	hub *websocket.Hub,
	producer EventPublisher,
	logger logging.Logger,
	serviceMetrics *metrics.Metrics,
) *PaymasterHandlers {
	return &PaymasterHandlers{
		store:     store,
		gate:      gate,
		ledger:    coordinator,
		presence:  tracker,
		hub:       hub,
		producer:  producer,
		logger:    logger,
		metrics:   serviceMetrics,
		startTime: time.Now(),
	}
}

// HandleResolveConversation derives the canonical conversation identity for
// a participant pair. Pure computation; nothing is created.
func (h *PaymasterHandlers) HandleResolveConversation(c *gin.Context) {
	var req api.ResolveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "a and b are required"})
		return
	}

	id, err := conversation.Resolve(req.A, req.B)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.ResolveConversationResponse{
		ConversationID: id.ConversationID,
		InitiatorID:    id.InitiatorID,
		RecipientID:    id.RecipientID,
	})
}

// HandleSendMessage appends a message after the access gate clears the
// sender. The persisted record is returned synchronously; realtime delivery
// to subscribers rides the Kafka topic.
func (h *PaymasterHandlers) HandleSendMessage(c *gin.Context) {
	conversationID := c.Param("id")

	var req api.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "sender_id and body are required"})
		return
	}

	recipientID := req.RecipientID
	if recipientID == "" {
		conv, err := h.store.GetConversation(c.Request.Context(), conversationID)
		if errors.Is(err, messages.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "conversation not found"})
			return
		}
		if err != nil {
			h.logger.WithError(err).Error("Failed to load conversation")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load conversation"})
			return
		}
		identity := conversation.Identity{
			ConversationID: conv.ID,
			InitiatorID:    conv.InitiatorID,
			RecipientID:    conv.RecipientID,
		}
		counterpart, ok := identity.Counterpart(req.SenderID)
		if !ok {
			c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "sender is not a participant"})
			return
		}
		recipientID = counterpart
	}

	decision, err := h.gate.Check(c.Request.Context(), req.SenderID, recipientID)
	if errors.Is(err, access.ErrRecipientNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "recipient account not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Access check failed")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "access check failed"})
		return
	}
	if h.metrics != nil {
		h.metrics.GateDecisions.WithLabelValues(gateOutcome(decision)).Inc()
	}
	if !decision.HasAccess {
		c.JSON(http.StatusPaymentRequired, api.PaymentRequiredResponse{
			Error:            "payment required to message this recipient",
			RequiredFeeCents: decision.RequiredFeeCents,
		})
		return
	}

	// Lazy conversation creation on first contact. The derived id makes the
	// upsert race-safe across replicas.
	if req.RecipientID != "" {
		identity, err := conversation.Resolve(req.SenderID, req.RecipientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		if identity.ConversationID != conversationID {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "conversation id does not match participants"})
			return
		}
		created, err := h.store.EnsureConversation(c.Request.Context(), identity, recipientID)
		if err != nil {
			h.logger.WithError(err).Error("Failed to ensure conversation")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create conversation"})
			return
		}
		if created {
			h.publish(kafka.EventConversationCreated, conversationID, map[string]interface{}{
				"conversation_id": identity.ConversationID,
				"initiator_id":    identity.InitiatorID,
				"recipient_id":    identity.RecipientID,
			})
		}
	}

	msg, err := h.store.Append(c.Request.Context(), messages.AppendParams{
		ConversationID:   conversationID,
		SenderID:         req.SenderID,
		Body:             req.Body,
		ReplyToMessageID: req.ReplyToMessageID,
		ClientRef:        req.ClientRef,
	})
	if errors.Is(err, messages.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "conversation not found"})
		return
	}
	if errors.Is(err, messages.ErrEmptyBody) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to append message")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to append message"})
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesAppended.WithLabelValues("http").Inc()
	}

	data := map[string]interface{}{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"sender_id":       msg.SenderID,
		"body":            msg.Body,
		"seq":             msg.Seq,
		"created_at":      msg.CreatedAt.Format(time.RFC3339Nano),
	}
	if msg.ClientRef != nil {
		data["client_ref"] = *msg.ClientRef
	}
	if msg.ReplyToMessageID != nil {
		data["reply_to_message_id"] = *msg.ReplyToMessageID
	}
	h.publish(kafka.EventMessageCreated, conversationID, data)

	c.JSON(http.StatusCreated, msg)
}

// HandleListMessages returns one page of history, oldest first.
func (h *PaymasterHandlers) HandleListMessages(c *gin.Context) {
	conversationID := c.Param("id")
	viewerID := c.Query("viewer_id")

	cursor, err := pagination.DecodeCursor(c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid cursor"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = parsePositiveInt(raw); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit"})
			return
		}
	}

	page, next, hasMore, err := h.store.ListPage(c.Request.Context(), conversationID, viewerID, cursor, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list messages")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to list messages"})
		return
	}

	if h.metrics != nil {
		h.metrics.MessagePageSize.WithLabelValues("list").Observe(float64(len(page)))
	}

	c.JSON(http.StatusOK, api.ListMessagesResponse{
		Messages:   page,
		NextCursor: next,
		HasMore:    hasMore,
	})
}

// HandleMarkRead marks the counterpart's messages in a conversation as read.
func (h *PaymasterHandlers) HandleMarkRead(c *gin.Context) {
	conversationID := c.Param("id")

	var req api.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "reader_id is required"})
		return
	}

	marked, err := h.store.MarkRead(c.Request.Context(), conversationID, req.ReaderID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark messages read")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to mark messages read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// HandleCheckAccess reports whether from may message to.
func (h *PaymasterHandlers) HandleCheckAccess(c *gin.Context) {
	fromID := c.Query("from")
	toID := c.Query("to")
	if fromID == "" || toID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "from and to are required"})
		return
	}

	decision, err := h.gate.Check(c.Request.Context(), fromID, toID)
	if errors.Is(err, access.ErrRecipientNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "recipient account not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Access check failed")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "access check failed"})
		return
	}

	if h.metrics != nil {
		h.metrics.GateDecisions.WithLabelValues(gateOutcome(decision)).Inc()
	}

	c.JSON(http.StatusOK, api.CheckAccessResponse{
		HasAccess:        decision.HasAccess,
		RequiredFeeCents: decision.RequiredFeeCents,
	})
}

// HandleCharge applies a priced action. Replays of the same (payer, payee,
// type, reference) tuple succeed without moving balance again.
func (h *PaymasterHandlers) HandleCharge(c *gin.Context) {
	var req api.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "payer_id, payee_id, amount_cents, reference_type and reference_id are required"})
		return
	}

	result, err := h.ledger.Charge(c.Request.Context(), ledger.ChargeParams{
		PayerID:     req.PayerID,
		PayeeID:     req.PayeeID,
		AmountCents: req.AmountCents,
		TxType:      req.ReferenceType,
		ReferenceID: req.ReferenceID,
		PostID:      req.PostID,
		Tier:        req.Tier,
		PeriodDays:  req.PeriodDays,
	})
	if h.metrics != nil {
		h.metrics.ChargesTotal.WithLabelValues(req.ReferenceType, chargeOutcome(result, err)).Inc()
	}
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, api.PaymentRequiredResponse{
			Error:            "insufficient balance",
			RequiredFeeCents: req.AmountCents,
		})
		return
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "account not found"})
		return
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSelfCharge),
		errors.Is(err, ledger.ErrUnknownTxType):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.WithError(err).Error("Charge failed")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "charge failed"})
		return
	}

	if h.metrics != nil {
		h.metrics.ChargeAmount.WithLabelValues(req.ReferenceType).Observe(float64(req.AmountCents))
	}

	if !result.AlreadyApplied {
		h.publish(kafka.EventChargeApplied, "", map[string]interface{}{
			"payer_id":       req.PayerID,
			"payee_id":       req.PayeeID,
			"amount_cents":   req.AmountCents,
			"fee_cents":      result.FeeCents,
			"net_cents":      result.NetCents,
			"reference_type": req.ReferenceType,
			"reference_id":   req.ReferenceID,
		})
	}

	c.JSON(http.StatusOK, api.ChargeResponse{
		Success:        result.Success,
		AlreadyApplied: result.AlreadyApplied,
		FeeCents:       result.FeeCents,
		NetCents:       result.NetCents,
	})
}

// HandleBalance reports an account's wallet state.
func (h *PaymasterHandlers) HandleBalance(c *gin.Context) {
	accountID := c.Param("id")

	acct, err := h.ledger.Balance(c.Request.Context(), accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "account not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load balance")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, api.BalanceResponse{
		AccountID:        acct.ID,
		BalanceCents:     acct.BalanceCents,
		TotalEarnedCents: acct.TotalEarnedCents,
	})
}

// HandleHeartbeat keeps a user marked online.
func (h *PaymasterHandlers) HandleHeartbeat(c *gin.Context) {
	var req api.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "user_id is required"})
		return
	}

	if err := h.presence.Heartbeat(c.Request.Context(), req.UserID); err != nil {
		h.logger.WithError(err).Error("Failed to record heartbeat")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to record heartbeat"})
		return
	}

	c.Status(http.StatusNoContent)
}

// HandlePresenceQuery reports online state for a set of users.
func (h *PaymasterHandlers) HandlePresenceQuery(c *gin.Context) {
	raw := c.Query("user_ids")
	if raw == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "user_ids is required"})
		return
	}

	online := make(map[string]bool)
	for _, userID := range strings.Split(raw, ",") {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		isOnline, err := h.presence.IsOnline(c.Request.Context(), userID)
		if err != nil {
			h.logger.WithError(err).Error("Failed to query presence")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to query presence"})
			return
		}
		online[userID] = isOnline
	}

	c.JSON(http.StatusOK, api.PresenceResponse{Online: online})
}

// HandleWebSocket serves WebSocket connections for realtime events.
func (h *PaymasterHandlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// HandleCreateAccount provisions an account (admin surface).
func (h *PaymasterHandlers) HandleCreateAccount(c *gin.Context) {
	var req api.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "username is required"})
		return
	}

	id, err := h.ledger.CreateAccount(c.Request.Context(), req.Username, req.DisplayName,
		req.BalanceCents, req.DMFeeCents, req.DMPaymentRequired)
	if errors.Is(err, ledger.ErrInvalidAmount) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to create account")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create account"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// HandleCreditAccount tops up an account balance (admin surface).
func (h *PaymasterHandlers) HandleCreditAccount(c *gin.Context) {
	accountID := c.Param("id")

	var req api.CreditAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount_cents is required"})
		return
	}

	newBalance, err := h.ledger.Credit(c.Request.Context(), accountID, req.AmountCents)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "account not found"})
		return
	}
	if errors.Is(err, ledger.ErrInvalidAmount) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to credit account")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to credit account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance_cents": newBalance})
}

// HandleNotFound provides a custom 404 handler
func (h *PaymasterHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "endpoint not found"})
}

// publish sends an event to the monetization topic. Publishing is
// best-effort: the mutation already committed, and a missed event only
// delays realtime delivery until the next fetch.
func (h *PaymasterHandlers) publish(eventType, conversationID string, data map[string]interface{}) {
	if h.producer == nil {
		return
	}

	event := &kafka.Event{
		ID:             uuid.New().String(),
		Type:           eventType,
		Source:         "paymaster",
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().UTC(),
		SchemaVersion:  "1.0",
	}

	if err := h.producer.PublishEvent(event); err != nil {
		h.logger.WithError(err).WithField("event_type", eventType).Warn("Failed to publish event")
		return
	}

	if h.metrics != nil {
		h.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}

func gateOutcome(d access.Decision) string {
	if d.HasAccess {
		return "allowed"
	}
	return "denied"
}

func chargeOutcome(result ledger.ChargeResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.AlreadyApplied:
		return "replay"
	default:
		return "applied"
	}
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}
