package paymaster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	api "paypadm/core/pkg/api/paymaster"
	"paypadm/core/pkg/clients"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	retry := clients.DefaultRetryConfig()
	retry.MaxRetries = 0
	return NewClient(Config{
		BaseURL:     server.URL,
		Logger:      logrus.New(),
		RetryConfig: &retry,
	})
}

func TestSendMessageReturnsPersistedRecord(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations/conv-1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req api.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":              "m1",
			"conversation_id": "conv-1",
			"sender_id":       req.SenderID,
			"body":            req.Body,
			"seq":             1,
		})
	}))

	msg, err := c.SendMessage(context.Background(), "conv-1", &api.SendMessageRequest{
		SenderID: "alice",
		Body:     "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "m1" || msg.Seq != 1 {
		t.Errorf("message = %+v, want m1 seq 1", msg)
	}
}

func TestSendMessageDeniedMapsToErrPaymentRequired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(api.PaymentRequiredResponse{
			Error:            "payment required to message this recipient",
			RequiredFeeCents: 2000,
		})
	}))

	_, err := c.SendMessage(context.Background(), "conv-1", &api.SendMessageRequest{
		SenderID: "alice",
		Body:     "hello",
	})
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("err = %v, want ErrPaymentRequired", err)
	}
}

func TestListMessagesBuildsQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("viewer_id") != "alice" || q.Get("before") != "cursor-1" || q.Get("limit") != "25" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(api.ListMessagesResponse{HasMore: false})
	}))

	if _, err := c.ListMessages(context.Background(), "conv-1", "alice", "cursor-1", 25); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
}

func TestChargeSurfacesServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "account not found"})
	}))

	_, err := c.Charge(context.Background(), &api.ChargeRequest{
		PayerID:       "alice",
		PayeeID:       "ghost",
		AmountCents:   100,
		ReferenceType: "dm_access",
		ReferenceID:   "ghost",
	})
	if err == nil {
		t.Fatal("want error for 404 response")
	}
}
