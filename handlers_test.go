package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type fakeScanService struct {
	lastScan workflow.ScanRequest
	scanErr  error
	ledger   *workflow.ReceiptSummary
}

func (f *fakeScanService) ProcessScan(_ context.Context, req workflow.ScanRequest) (*workflow.ScanResult, error) {
	f.lastScan = req
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &workflow.ScanResult{
		Tag:          workflow.ResolvedTag{Code: req.EPC},
		ReceivedQty:  decimal.NewFromInt(5),
		RemainingQty: decimal.NewFromInt(5),
		Status:       models.PurchaseOrderStatusPartial,
	}, nil
}

func (f *fakeScanService) TrackScan(_ context.Context, req workflow.ScanRequest) (*workflow.TrackResult, error) {
	f.lastScan = req
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &workflow.TrackResult{
		Tag:              workflow.ResolvedTag{Code: req.EPC},
		PresenceDecision: workflow.PresenceNewEntry,
	}, nil
}

func (f *fakeScanService) GetReceiptLedger(_ context.Context, poNumber string) (*workflow.ReceiptSummary, error) {
	if f.ledger == nil || f.ledger.PurchaseOrderNumber != poNumber {
		return nil, fmt.Errorf("purchase order %q: %w", poNumber, utils.ErrNotFound)
	}
	return f.ledger, nil
}

func newTestEngine(svc scanService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	api := &rfidAPI{}
	if svc != nil {
		api.setService(svc)
	}
	r := gin.New()
	api.register(r)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestScanHandlerAcceptsNumericValue(t *testing.T) {
	svc := &fakeScanService{}
	r := newTestEngine(svc)

	w := postJSON(r, "/rfid/scan", `{"epc":"E200-1","value":42,"rssi":-51.5,"deviceId":"gate-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.lastScan.EPC != "E200-1" || string(svc.lastScan.Value) != "42" || svc.lastScan.DeviceId != "gate-1" {
		t.Fatalf("unexpected request forwarded: %+v", svc.lastScan)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["po_status"] != "Partial" {
		t.Fatalf("po_status=%v", body["po_status"])
	}
}

func TestScanHandlerMapsErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("epc: %w", utils.ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("tag code \"X\": %w", utils.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("receipt lock busy: %w", utils.ErrConflict), http.StatusConflict},
		{fmt.Errorf("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newTestEngine(&fakeScanService{scanErr: tc.err})
		w := postJSON(r, "/rfid/scan", `{"epc":"E1","value":"7"}`)
		if w.Code != tc.code {
			t.Fatalf("err=%v: status=%d want %d", tc.err, w.Code, tc.code)
		}
		if tc.code == http.StatusInternalServerError && strings.Contains(w.Body.String(), "bad connection") {
			t.Fatalf("internal error leaked: %s", w.Body.String())
		}
	}
}

func TestScanHandlerRejectsMalformedBody(t *testing.T) {
	r := newTestEngine(&fakeScanService{})
	w := postJSON(r, "/rfid/scan", `{"epc":"E1","value":{"nested":true}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHandlersUnavailableUntilServiceInstalled(t *testing.T) {
	r := newTestEngine(nil)
	w := postJSON(r, "/rfid/track", `{"epc":"E1","value":"7"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestTrackHandler(t *testing.T) {
	svc := &fakeScanService{}
	r := newTestEngine(svc)
	w := postJSON(r, "/rfid/track", `{"epc":"E9","value":"3"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"presence_decision":"new_entry"`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestReceiptsHandlers(t *testing.T) {
	svc := &fakeScanService{ledger: &workflow.ReceiptSummary{
		PurchaseOrderNumber: "PO-1",
		Status:              models.PurchaseOrderStatusPending,
		Entries:             []models.LedgerEntry{},
	}}
	r := newTestEngine(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/purchase-orders/PO-1/receipts", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"po_number":"PO-1"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/purchase-orders/PO-1/receipts.xlsx", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx status=%d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "receipts-PO-1.xlsx") {
		t.Fatalf("content-disposition=%q", got)
	}
	if w.Body.Len() == 0 {
		t.Fatalf("empty workbook")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/purchase-orders/PO-404/receipts", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing po status=%d", w.Code)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("got %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
