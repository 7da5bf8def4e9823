package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(logrus.New(), nil)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return hub, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return payload
}

func subscribe(t *testing.T, conn *websocket.Conn, userID string, conversations ...string) {
	t.Helper()
	sub := SubscriptionMessage{Action: "subscribe", Conversations: conversations, UserID: &userID}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ack := readEvent(t, conn)
	if ack["type"] != "subscription_confirmed" {
		t.Fatalf("ack = %v, want subscription_confirmed", ack)
	}
}

func TestSubscriberReceivesConversationEvents(t *testing.T) {
	hub, conn := dialTestHub(t)
	subscribe(t, conn, "u1", "conv-1")

	hub.BroadcastToConversation("conv-1", "message_created", map[string]interface{}{"body": "hello"})

	event := readEvent(t, conn)
	if event["type"] != "message_created" || event["conversation_id"] != "conv-1" {
		t.Errorf("event = %v, want message_created for conv-1", event)
	}
}

func TestEventsForOtherConversationsAreFiltered(t *testing.T) {
	hub, conn := dialTestHub(t)
	subscribe(t, conn, "u1", "conv-1")

	hub.BroadcastToConversation("conv-other", "message_created", map[string]interface{}{"body": "noise"})
	hub.BroadcastToConversation("conv-1", "message_created", map[string]interface{}{"body": "signal"})

	event := readEvent(t, conn)
	data, _ := event["data"].(map[string]interface{})
	if data["body"] != "signal" {
		t.Errorf("received %v, want only the conv-1 event", event)
	}
}

func TestUserTargetedEventBypassesConversationFilter(t *testing.T) {
	hub, conn := dialTestHub(t)
	subscribe(t, conn, "u1")

	hub.BroadcastToUser("u1", "charge_applied", map[string]interface{}{"amount_cents": float64(2000)})

	event := readEvent(t, conn)
	if event["type"] != "charge_applied" || event["user_id"] != "u1" {
		t.Errorf("event = %v, want charge_applied targeted at u1", event)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub, conn := dialTestHub(t)
	subscribe(t, conn, "u1", "conv-1", "conv-2")

	unsub := SubscriptionMessage{Action: "unsubscribe", Conversations: []string{"conv-1"}}
	if err := conn.WriteJSON(unsub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	ack := readEvent(t, conn)
	if ack["type"] != "unsubscription_confirmed" {
		t.Fatalf("ack = %v, want unsubscription_confirmed", ack)
	}

	hub.BroadcastToConversation("conv-1", "message_created", map[string]interface{}{"body": "dropped"})
	hub.BroadcastToConversation("conv-2", "message_created", map[string]interface{}{"body": "kept"})

	event := readEvent(t, conn)
	if event["conversation_id"] != "conv-2" {
		t.Errorf("event = %v, want only the conv-2 event", event)
	}
}

func TestSubscriptionChangesDuringBroadcasts(t *testing.T) {
	hub, conn := dialTestHub(t)
	subscribe(t, conn, "u1", "conv-0")

	// Dispatch reads the subscription list while readPump rewrites it; both
	// run for the whole test.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			hub.BroadcastToConversation("conv-0", "message_created", map[string]interface{}{"n": i})
		}
	}()

	for i := 1; i <= 10; i++ {
		sub := SubscriptionMessage{Action: "subscribe", Conversations: []string{fmt.Sprintf("conv-%d", i)}}
		if err := conn.WriteJSON(sub); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}
	<-done

	// 50 events plus 10 acks; writePump may batch several per frame.
	total := 0
	for total < 60 {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d messages: %v", total, err)
		}
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			var payload map[string]interface{}
			if err := json.Unmarshal(line, &payload); err != nil {
				t.Fatalf("unmarshal %q: %v", line, err)
			}
			total++
		}
	}
	if total != 60 {
		t.Errorf("received %d messages, want exactly 60", total)
	}
}
