package conversation

import (
	"fmt"
	"testing"
)

func TestResolveIsCommutative(t *testing.T) {
	pairs := [][2]string{
		{"5f2c1a34-0000-0000-0000-000000000001", "5f2c1a34-0000-0000-0000-000000000002"},
		{"alice", "bob"},
		{"z", "a"},
	}
	for _, p := range pairs {
		ab, err := Resolve(p[0], p[1])
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", p[0], p[1], err)
		}
		ba, err := Resolve(p[1], p[0])
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", p[1], p[0], err)
		}
		if ab != ba {
			t.Errorf("Resolve(%q,%q) = %+v, Resolve(%q,%q) = %+v; want equal", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	first, err := Resolve("user-a", "user-b")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := Resolve("user-a", "user-b")
		if err != nil {
			t.Fatal(err)
		}
		if again.ConversationID != first.ConversationID {
			t.Fatalf("id changed between calls: %s vs %s", again.ConversationID, first.ConversationID)
		}
	}
}

func TestResolveRolesUseLexicographicTieBreak(t *testing.T) {
	id, err := Resolve("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if id.InitiatorID != "alice" || id.RecipientID != "bob" {
		t.Errorf("roles = (%s, %s), want (alice, bob)", id.InitiatorID, id.RecipientID)
	}
}

func TestResolveDistinctPairsDistinctIDs(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 50; i++ {
		for j := i + 1; j < 50; j++ {
			a := fmt.Sprintf("user-%02d", i)
			b := fmt.Sprintf("user-%02d", j)
			id, err := Resolve(a, b)
			if err != nil {
				t.Fatal(err)
			}
			pair := a + "|" + b
			if prev, ok := seen[id.ConversationID]; ok && prev != pair {
				t.Fatalf("collision: %s and %s both map to %s", prev, pair, id.ConversationID)
			}
			seen[id.ConversationID] = pair
		}
	}
}

func TestResolveRejectsSameParticipant(t *testing.T) {
	if _, err := Resolve("alice", "alice"); err != ErrSameParticipant {
		t.Errorf("err = %v, want ErrSameParticipant", err)
	}
}

func TestCounterpart(t *testing.T) {
	id, _ := Resolve("alice", "bob")

	other, ok := id.Counterpart("alice")
	if !ok || other != "bob" {
		t.Errorf("Counterpart(alice) = (%s, %v), want (bob, true)", other, ok)
	}
	other, ok = id.Counterpart("bob")
	if !ok || other != "alice" {
		t.Errorf("Counterpart(bob) = (%s, %v), want (alice, true)", other, ok)
	}
	if _, ok := id.Counterpart("carol"); ok {
		t.Error("Counterpart(carol) should not resolve")
	}
}
