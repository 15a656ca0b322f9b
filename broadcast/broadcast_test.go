package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/broadcast"
	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	events []workflow.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e workflow.Event) error {
	p.events = append(p.events, e)
	return p.err
}

type fakeNats struct {
	subjects []string
	payloads [][]byte
}

func (f *fakeNats) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestFanoutDeliversToAllSinksAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("sink down")}
	after := &recordingPublisher{}

	f := broadcast.Fanout{ok, bad, nil, after}
	err := f.Publish(context.Background(), workflow.PresenceEvent{EPC: "E1", Status: "in"})
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(ok.events) != 1 || len(bad.events) != 1 || len(after.events) != 1 {
		t.Fatalf("expected every sink to see the event, got %d/%d/%d", len(ok.events), len(bad.events), len(after.events))
	}
}

func TestNatsPublisherSubjectPerKind(t *testing.T) {
	nc := &fakeNats{}
	p := broadcast.NewNatsPublisher(nc, "")

	if err := p.Publish(context.Background(), workflow.ReceiptEvent{PurchaseOrderNumber: "PO-1", ScannedQty: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("publish receipt: %v", err)
	}
	if err := p.Publish(context.Background(), workflow.PresenceEvent{EPC: "E1"}); err != nil {
		t.Fatalf("publish presence: %v", err)
	}
	if got := strings.Join(nc.subjects, ","); got != "rfid.receipt,rfid.presence" {
		t.Fatalf("subjects=%q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(nc.payloads[0], &body); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if body["po_number"] != "PO-1" {
		t.Fatalf("po_number=%v", body["po_number"])
	}
}

func TestHubBroadcastsEnvelopeToSubscribers(t *testing.T) {
	hub := broadcast.NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Publish(context.Background(), workflow.PresenceEvent{EPC: "E200", Status: "out"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != workflow.EventKindPresence {
		t.Fatalf("type=%q", env.Type)
	}
	if env.Data["epc"] != "E200" || env.Data["status"] != "out" {
		t.Fatalf("data=%v", env.Data)
	}
}

func TestHubWithoutSubscribersIsNoop(t *testing.T) {
	hub := broadcast.NewHub(nil, nil)
	if err := hub.Publish(context.Background(), workflow.ReceiptEvent{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients")
	}
}
