package paymaster

import (
	"testing"
	"time"

	"paypadm/core/pkg/models"
)

func serverMessage(id, clientRef string, seq int64, at time.Time) models.Message {
	msg := models.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "alice",
		Body:           "body-" + id,
		Seq:            seq,
		CreatedAt:      at,
	}
	if clientRef != "" {
		ref := clientRef
		msg.ClientRef = &ref
	}
	return msg
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		if e.Message.ID != "" {
			out[i] = e.Message.ID
		} else {
			out[i] = "pending:" + e.ClientRef
		}
	}
	return out
}

func TestPendingEntryReplacedByServerRecord(t *testing.T) {
	tl := NewTimeline()
	tl.AddPending("ref-1", "alice", "hello")

	if tl.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", tl.Pending())
	}

	tl.ApplyServer(serverMessage("m1", "ref-1", 1, time.Now().UTC()))

	entries := tl.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (replaced, not duplicated)", len(entries))
	}
	if entries[0].Status != StatusSent || entries[0].Message.ID != "m1" {
		t.Errorf("entry = %+v, want sent m1", entries[0])
	}
	if tl.Pending() != 0 {
		t.Errorf("pending = %d, want 0", tl.Pending())
	}
}

func TestServerTimestampResortsOptimisticOrder(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	tl := NewTimeline()
	tl.now = func() time.Time { return clock }

	// Counterpart message arrives first with a server timestamp ahead of the
	// local clock used for the optimistic entry.
	tl.ApplyServer(serverMessage("m-other", "", 5, base.Add(2*time.Second)))

	clock = base.Add(time.Second)
	tl.AddPending("ref-1", "alice", "optimistically last")

	// Optimistic entry sits before the counterpart message by local time.
	entries := tl.Entries()
	if entries[0].ClientRef != "ref-1" {
		t.Fatalf("order before confirm = %v, want pending first", ids(entries))
	}

	// Server assigns the real timestamp, which lands after the counterpart.
	tl.ApplyServer(serverMessage("m-mine", "ref-1", 6, base.Add(3*time.Second)))

	entries = tl.Entries()
	if entries[0].Message.ID != "m-other" || entries[1].Message.ID != "m-mine" {
		t.Errorf("order after confirm = %v, want m-other then m-mine", ids(entries))
	}
}

func TestDuplicateServerRecordsAreDeduped(t *testing.T) {
	tl := NewTimeline()
	at := time.Now().UTC()

	// Same record from the realtime stream and an HTTP page.
	tl.ApplyServer(serverMessage("m1", "", 1, at))
	tl.MergePage([]models.Message{
		serverMessage("m1", "", 1, at),
		serverMessage("m2", "", 2, at.Add(time.Second)),
	})

	entries := tl.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want m1 deduped", ids(entries))
	}
}

func TestIdenticalTimestampsOrderBySeq(t *testing.T) {
	tl := NewTimeline()
	at := time.Now().UTC()

	tl.ApplyServer(serverMessage("m2", "", 2, at))
	tl.ApplyServer(serverMessage("m1", "", 1, at))

	entries := tl.Entries()
	if entries[0].Message.ID != "m1" || entries[1].Message.ID != "m2" {
		t.Errorf("order = %v, want seq to break the timestamp tie", ids(entries))
	}
}

func TestFailRemovesOptimisticEntry(t *testing.T) {
	tl := NewTimeline()
	tl.ApplyServer(serverMessage("m1", "", 1, time.Now().UTC()))
	tl.AddPending("ref-1", "alice", "will fail")

	tl.Fail("ref-1")

	entries := tl.Entries()
	if len(entries) != 1 || entries[0].Message.ID != "m1" {
		t.Errorf("entries = %v, want only the confirmed record after failure", ids(entries))
	}
	if tl.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after failure", tl.Pending())
	}
}

func TestFailLeavesConfirmedEntriesAlone(t *testing.T) {
	tl := NewTimeline()
	tl.AddPending("ref-1", "alice", "hello")
	tl.ApplyServer(serverMessage("m1", "ref-1", 1, time.Now().UTC()))

	// A late failure signal for an already-confirmed send is a no-op.
	tl.Fail("ref-1")

	entries := tl.Entries()
	if len(entries) != 1 || entries[0].Status != StatusSent {
		t.Errorf("entries = %+v, want the confirmed entry kept", entries)
	}
}

func TestMergePageFillsGapAfterReconnect(t *testing.T) {
	tl := NewTimeline()
	base := time.Now().UTC()

	tl.ApplyServer(serverMessage("m1", "", 1, base))

	// Messages m2 and m3 were pushed while the stream was down; the
	// reconnect hook re-fetches the latest page which contains all three.
	tl.MergePage([]models.Message{
		serverMessage("m1", "", 1, base),
		serverMessage("m2", "", 2, base.Add(time.Second)),
		serverMessage("m3", "", 3, base.Add(2*time.Second)),
	})

	entries := tl.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %v, want gap filled without duplicates", ids(entries))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if entries[i].Message.ID != want {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].Message.ID, want)
		}
	}
}
