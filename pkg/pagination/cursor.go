// Package pagination provides keyset cursor utilities for paging backward
// through message history. Cursors encode a stable position using a
// timestamp + id pair, so paginating never skips or duplicates rows even as
// new messages arrive.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLimit is the default page size if not specified
	DefaultLimit = 50
	// MaxLimit is the maximum allowed page size
	MaxLimit = 200
)

// Cursor represents a stable pagination position.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Encode serializes the cursor to an opaque string for clients.
// Format: base64("ts:{timestamp_us}:id:{id}")
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("ts:%d:id:%s", c.Timestamp.UnixMicro(), c.ID)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an encoded cursor string.
// Returns nil for an empty cursor and an error for a malformed one.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	raw := string(data)
	if !strings.HasPrefix(raw, "ts:") {
		return nil, fmt.Errorf("invalid cursor format: missing ts prefix")
	}

	parts := strings.SplitN(raw[len("ts:"):], ":id:", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format: missing id segment")
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return &Cursor{
		Timestamp: time.UnixMicro(micros).UTC(),
		ID:        parts[1],
	}, nil
}

// EncodeCursor is a convenience function to create and encode a cursor.
func EncodeCursor(timestamp time.Time, id string) string {
	return Cursor{Timestamp: timestamp, ID: id}.Encode()
}

// ClampLimit ensures limit is within valid bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// KeysetBuilder constructs keyset pagination SQL fragments for paging
// backward through history (older rows than the cursor).
type KeysetBuilder struct {
	// TimestampColumn is the column name for the timestamp (e.g., "created_at")
	TimestampColumn string
	// IDColumn is the column name for the unique tiebreaker (e.g., "id", "seq")
	IDColumn string
}

// Condition returns a SQL WHERE fragment selecting rows strictly older than
// the cursor position. Empty string and nil args when no cursor is set.
// Placeholders use $N for PostgreSQL.
func (b *KeysetBuilder) Condition(cursor *Cursor, startArgIdx int) (string, []interface{}) {
	if cursor == nil {
		return "", nil
	}
	return fmt.Sprintf("(%s, %s) < ($%d, $%d)",
			b.TimestampColumn, b.IDColumn, startArgIdx, startArgIdx+1),
		[]interface{}{cursor.Timestamp, cursor.ID}
}

// OrderBy returns the ORDER BY clause used when fetching a history page.
// Rows are fetched newest-first and reversed in the application layer so the
// returned page reads oldest to newest.
func (b *KeysetBuilder) OrderBy() string {
	return fmt.Sprintf("ORDER BY %s DESC, %s DESC", b.TimestampColumn, b.IDColumn)
}
