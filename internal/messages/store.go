// Package messages persists conversation history. Messages carry a
// server-assigned per-conversation sequence number, so display order
// (created_at, seq) stays deterministic even when timestamps collide.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"paypadm/core/internal/conversation"
	"paypadm/core/pkg/logging"
	"paypadm/core/pkg/models"
	"paypadm/core/pkg/pagination"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationMismatch = errors.New("conversation id does not match participants")
	ErrEmptyBody            = errors.New("message body must not be empty")
)

// Store reads and writes conversation history.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	keyset pagination.KeysetBuilder
}

// NewStore creates a message store.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		keyset: pagination.KeysetBuilder{TimestampColumn: "created_at", IDColumn: "seq"},
	}
}

// EnsureConversation upserts the conversation row for a resolved identity,
// snapshotting the message recipient's per-message fee as the conversation
// rate at first contact. A conflict on the derived id means another caller
// created it first, which is success, not an error. Returns true when this
// call created the row.
func (s *Store) EnsureConversation(ctx context.Context, id conversation.Identity, payeeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, initiator_id, recipient_id, rate_per_msg_cents)
		VALUES ($1, $2, $3, COALESCE((SELECT dm_fee_cents FROM accounts WHERE id = $4), 0))
		ON CONFLICT (id) DO NOTHING
	`, id.ConversationID, id.InitiatorID, id.RecipientID, payeeID)
	if err != nil {
		return false, fmt.Errorf("upsert conversation: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// GetConversation loads one conversation row.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, recipient_id, rate_per_msg_cents, last_seq, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, conversationID).Scan(&conv.ID, &conv.InitiatorID, &conv.RecipientID,
		&conv.RatePerMsgCents, &conv.LastSeq, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// AppendParams describes one message insert. RecipientID is optional: when
// set, the conversation is lazily created on first contact and the path id
// is verified against the derived identity.
type AppendParams struct {
	ConversationID   string
	SenderID         string
	RecipientID      string
	Body             string
	ReplyToMessageID *string
	ClientRef        *string
}

// Append inserts a message and returns the persisted record with its
// server-assigned id, sequence number, and timestamp. The sequence bump and
// the insert share one transaction, so seq is gapless per conversation and
// the conversation's updated_at always tracks its newest message.
func (s *Store) Append(ctx context.Context, p AppendParams) (models.Message, error) {
	if p.Body == "" {
		return models.Message{}, ErrEmptyBody
	}

	if p.RecipientID != "" {
		id, err := conversation.Resolve(p.SenderID, p.RecipientID)
		if err != nil {
			return models.Message{}, err
		}
		if id.ConversationID != p.ConversationID {
			return models.Message{}, ErrConversationMismatch
		}
		if _, err := s.EnsureConversation(ctx, id, p.RecipientID); err != nil {
			return models.Message{}, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	var seq int64
	err = tx.QueryRowContext(ctx, `
		UPDATE conversations
		SET last_seq = last_seq + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING last_seq
	`, p.ConversationID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("advance message sequence: %w", err)
	}

	msg := models.Message{
		ConversationID:   p.ConversationID,
		SenderID:         p.SenderID,
		Body:             p.Body,
		Seq:              seq,
		ReplyToMessageID: p.ReplyToMessageID,
		ClientRef:        p.ClientRef,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body, seq, reply_to_message_id, client_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.ConversationID, p.SenderID, p.Body, seq, p.ReplyToMessageID, p.ClientRef).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit append: %w", err)
	}

	return msg, nil
}

// ListPage returns one page of history strictly ordered oldest to newest,
// ending just before the cursor position (or at the newest message when the
// cursor is nil). next cursor points at the oldest returned message for
// fetching the preceding page; hasMore reports whether older history exists.
func (s *Store) ListPage(ctx context.Context, conversationID, viewerID string, cursor *pagination.Cursor, limit int) ([]models.Message, string, bool, error) {
	limit = pagination.ClampLimit(limit)

	query := `
		SELECT id, conversation_id, sender_id, body, seq, reply_to_message_id, client_ref, is_read, created_at
		FROM messages
		WHERE conversation_id = $1`
	args := []interface{}{conversationID}

	if cond, condArgs := s.keyset.Condition(cursor, 2); cond != "" {
		query += " AND " + cond
		args = append(args, condArgs...)
	}
	query += " " + s.keyset.OrderBy()
	query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", false, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	fetched := make([]models.Message, 0, limit+1)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.Seq,
			&msg.ReplyToMessageID, &msg.ClientRef, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, "", false, fmt.Errorf("scan message: %w", err)
		}
		msg.IsCurrentUser = msg.SenderID == viewerID
		fetched = append(fetched, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, fmt.Errorf("iterate messages: %w", err)
	}

	hasMore := len(fetched) > limit
	if hasMore {
		fetched = fetched[:limit]
	}

	// Fetched newest-first; the page reads oldest to newest.
	page := make([]models.Message, len(fetched))
	for i, msg := range fetched {
		page[len(fetched)-1-i] = msg
	}

	nextCursor := ""
	if hasMore && len(page) > 0 {
		oldest := page[0]
		nextCursor = pagination.EncodeCursor(oldest.CreatedAt, strconv.FormatInt(oldest.Seq, 10))
	}

	return page, nextCursor, hasMore, nil
}

// MarkRead flags every unread counterpart message in the conversation as
// read and returns how many were flipped.
func (s *Store) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
