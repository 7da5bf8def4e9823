package paymaster

import (
	"sort"
	"sync"
	"time"

	"paypadm/core/pkg/models"
)

// Delivery states of a timeline entry.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Entry is one message in a client timeline together with its delivery
// state. Pending entries are optimistic: shown immediately with a local
// timestamp, then replaced by the server record when it arrives.
type Entry struct {
	Message models.Message
	Status  string
	// ClientRef correlates an optimistic entry with the server record that
	// confirms it. Empty for entries that originated on the server.
	ClientRef string
}

// Timeline reconciles one conversation's message list on the client. Server
// records arrive from two unordered sources, HTTP pages and the realtime
// stream; the timeline dedupes them by id, matches optimistic sends by
// client_ref, and keeps everything ordered by (created_at, seq).
type Timeline struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{now: time.Now}
}

// AddPending inserts an optimistic entry for a message the client just sent.
// The entry shows at the end of the timeline with a local timestamp until
// the server record replaces it.
func (t *Timeline) AddPending(clientRef, senderID, body string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ref := clientRef
	t.entries = append(t.entries, Entry{
		Message: models.Message{
			SenderID:      senderID,
			Body:          body,
			ClientRef:     &ref,
			IsCurrentUser: true,
			CreatedAt:     t.now().UTC(),
		},
		Status:    StatusPending,
		ClientRef: clientRef,
	})
	t.sortLocked()
}

// ApplyServer reconciles one server record into the timeline: it replaces
// the matching pending entry if the record carries its client_ref, is
// dropped if the id is already present, and is inserted in order otherwise.
// The timeline resorts because the server timestamp can differ from the
// optimistic one.
func (t *Timeline) ApplyServer(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.ClientRef != nil {
		for i := range t.entries {
			if t.entries[i].ClientRef == *msg.ClientRef {
				t.entries[i] = Entry{Message: msg, Status: StatusSent, ClientRef: *msg.ClientRef}
				t.sortLocked()
				return
			}
		}
	}

	for i := range t.entries {
		if t.entries[i].Message.ID != "" && t.entries[i].Message.ID == msg.ID {
			// Already known from the other source.
			return
		}
	}

	t.entries = append(t.entries, Entry{Message: msg, Status: StatusSent})
	t.sortLocked()
}

// MergePage reconciles an HTTP history page into the timeline. Used on
// initial load and after reconnects to fill gaps the realtime stream missed.
func (t *Timeline) MergePage(page []models.Message) {
	for _, msg := range page {
		t.ApplyServer(msg)
	}
}

// Fail removes the pending entry for a rejected send. The server never saw
// the message, so no optimistic state stays visible; the caller surfaces the
// error and a retry goes through AddPending again.
func (t *Timeline) Fail(clientRef string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ClientRef == clientRef && t.entries[i].Status == StatusPending {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Entries returns an ordered snapshot of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Pending reports how many entries still await server confirmation.
func (t *Timeline) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.entries {
		if e.Status == StatusPending {
			n++
		}
	}
	return n
}

// sortLocked orders entries by (created_at, seq). Pending entries carry
// seq 0, so among identical timestamps they sort before confirmed records;
// once confirmed, the server's seq makes the order deterministic.
func (t *Timeline) sortLocked() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i].Message, t.entries[j].Message
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
}
