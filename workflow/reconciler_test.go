package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestActorRefAcceptsStringOrNumber(t *testing.T) {
	cases := map[string]string{
		`{"epc":"E1","value":"42"}`:  "42",
		`{"epc":"E1","value":42}`:    "42",
		`{"epc":"E1","value":" 7 "}`: "7",
		`{"epc":"E1","value":null}`:  "",
		`{"epc":"E1"}`:               "",
	}
	for body, want := range cases {
		var req ScanRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if string(req.Value) != want {
			t.Fatalf("%s: value=%q want %q", body, req.Value, want)
		}
	}

	var req ScanRequest
	if err := json.Unmarshal([]byte(`{"epc":"E1","value":[1]}`), &req); err == nil {
		t.Fatalf("array value should be rejected")
	}
}

func TestScanRequestValidate(t *testing.T) {
	cases := []struct {
		req     ScanRequest
		wantErr error
		wantId  int
	}{
		{ScanRequest{EPC: "E1", Value: "12"}, nil, 12},
		{ScanRequest{EPC: "   ", Value: "12"}, utils.ErrBadRequest, 0},
		{ScanRequest{EPC: "E1", Value: ""}, utils.ErrBadRequest, 0},
		{ScanRequest{EPC: "E1", Value: "dock-a"}, utils.ErrBadRequest, 0},
		{ScanRequest{EPC: "E1", Value: "-3"}, utils.ErrBadRequest, 0},
	}
	for _, tc := range cases {
		req := tc.req
		id, err := req.validate()
		if tc.wantErr == nil {
			if err != nil || id != tc.wantId {
				t.Fatalf("%+v: id=%d err=%v", tc.req, id, err)
			}
			continue
		}
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%+v: err=%v want %v", tc.req, err, tc.wantErr)
		}
		if utils.HTTPStatus(err) != 400 {
			t.Fatalf("%+v: status=%d", tc.req, utils.HTTPStatus(err))
		}
	}
}

func TestActivityText(t *testing.T) {
	got := ActivityText(models.PresenceState{
		TagCode:             "E200",
		Status:              models.PresenceStatusOut,
		LocationName:        "Dock A",
		ItemNumber:          "ITEM-A",
		PurchaseOrderNumber: "PO-1",
	})
	want := "Tag E200 checked out at Dock A (item ITEM-A, PO PO-1)"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := ActivityText(models.PresenceState{TagCode: "E1", Status: models.PresenceStatusIn}); got != "Tag E1 checked in" {
		t.Fatalf("bare text=%q", got)
	}
}

func TestBuildReceiptSummary(t *testing.T) {
	po := &models.PurchaseOrder{
		OrderNumber:   "PO-1",
		CurrentStatus: models.PurchaseOrderStatusPartial,
		Details: []models.PurchaseOrderDetail{
			{ItemNumber: "A", OrderedQty: decimal.NewFromInt(10)},
			{ItemNumber: "B", OrderedQty: decimal.NewFromInt(4)},
		},
	}
	entries := []models.LedgerEntry{entry("A", "T1", 5), entry("A", "T2", 3), entry("Z", "T9", 1)}

	s := BuildReceiptSummary(po, entries)
	if len(s.Lines) != 2 || s.Lines[0].ItemNumber != "A" || s.Lines[1].ItemNumber != "B" {
		t.Fatalf("lines=%+v", s.Lines)
	}
	if !s.Lines[0].ReceivedQty.Equal(decimal.NewFromInt(8)) || !s.Lines[0].RemainingQty.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("line A=%+v", s.Lines[0])
	}
	if !s.Lines[1].ReceivedQty.IsZero() || !s.Lines[1].RemainingQty.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("line B=%+v", s.Lines[1])
	}
	if len(s.Entries) != 3 {
		t.Fatalf("entries should be passed through untouched")
	}

	empty := BuildReceiptSummary(po, nil)
	if empty.Entries == nil {
		t.Fatalf("entries should encode as [] not null")
	}
}

type fakePublisher struct {
	got   []Event
	err   error
	panic bool
}

func (p *fakePublisher) Publish(_ context.Context, e Event) error {
	if p.panic {
		panic("sink exploded")
	}
	p.got = append(p.got, e)
	return p.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestPublishNeverFailsTheScan(t *testing.T) {
	events := []Event{ReceiptEvent{PurchaseOrderNumber: "PO-1"}, PresenceEvent{EPC: "E1"}}

	failing := &fakePublisher{err: errors.New("broker down")}
	r := NewReconciler(nil, quietLogger(), failing)
	r.publish(context.Background(), events)
	if len(failing.got) != 2 {
		t.Fatalf("a failing publish must not stop later events, got %d", len(failing.got))
	}

	panicking := &fakePublisher{panic: true}
	r = NewReconciler(nil, quietLogger(), panicking)
	r.publish(context.Background(), events)
}

func TestPublishOutlivesCancelledRequest(t *testing.T) {
	var seen error
	pub := publisherFunc(func(ctx context.Context, _ Event) error {
		seen = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewReconciler(nil, quietLogger(), pub).publish(ctx, []Event{PresenceEvent{}})
	if seen != nil {
		t.Fatalf("publish context inherited cancellation: %v", seen)
	}
}

type publisherFunc func(ctx context.Context, e Event) error

func (f publisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestNewReconcilerOptions(t *testing.T) {
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	r := NewReconciler(nil, quietLogger(), nil, WithClock(fixedClock{at}), WithCooldown(5*time.Second), WithCooldown(0))
	if r.Cooldown() != 5*time.Second {
		t.Fatalf("cooldown=%s", r.Cooldown())
	}
	if !r.clock.Now().Equal(at) {
		t.Fatalf("clock not installed")
	}
	if _, ok := r.publisher.(NopPublisher); !ok {
		t.Fatalf("nil publisher should default to NopPublisher")
	}
	if NewReconciler(nil, nil, nil).Cooldown() != 60*time.Second {
		t.Fatalf("default cooldown should be 60s")
	}
}

func TestMySQLErrorClassification(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if !isDuplicateKeyErr(dup) {
		t.Fatalf("1062 should be a duplicate key error")
	}
	if isDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatalf("deadlock is not a duplicate key error")
	}
	if mysqlErrNumber(errors.New("plain")) != 0 {
		t.Fatalf("non-mysql errors have no number")
	}
}

func TestLogScanErrorCarriesRequestIdentity(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	r := NewReconciler(nil, logger, nil)

	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-9")
	ctx = utils.SetDeviceIdInContext(ctx, "gate-2")
	ctx = utils.SetUserIdInContext(ctx, 42)
	req := ScanRequest{EPC: "E1", Value: "42"}

	r.logScanError(ctx, "ProcessScan", req, fmt.Errorf("tag: %w", utils.ErrNotFound))
	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel {
		t.Fatalf("entry=%+v", e)
	}
	if e.Data["device_id"] != "gate-2" || e.Data["user_id"] != 42 || e.Data["correlation_id"] != "cid-9" {
		t.Fatalf("fields=%v", e.Data)
	}

	r.logScanError(context.Background(), "ProcessScan", req, errors.New("driver: bad connection"))
	if e := hook.LastEntry(); e.Level != logrus.ErrorLevel {
		t.Fatalf("unexpected failures should log at error, got %s", e.Level)
	}
}

func TestRetryOnDeadlockRerunsTheWholeUnit(t *testing.T) {
	deadlock := &mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found"}

	calls := 0
	err := retryOnDeadlock(context.Background(), func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("idempotency insert: %w: %w", utils.ErrConflict, deadlock)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	calls = 0
	err = retryOnDeadlock(context.Background(), func() error {
		calls++
		return fmt.Errorf("ledger: %w", deadlock)
	})
	if calls != 2 {
		t.Fatalf("deadlock should be retried exactly once, calls=%d", calls)
	}
	if !errors.Is(err, utils.ErrConflict) || !isDeadlockErr(err) {
		t.Fatalf("err=%v", err)
	}

	calls = 0
	err = retryOnDeadlock(context.Background(), func() error {
		calls++
		return fmt.Errorf("tag: %w", utils.ErrNotFound)
	})
	if calls != 1 || !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("non-deadlock errors must not be retried: calls=%d err=%v", calls, err)
	}
}
