package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventKindReceipt  = "receipt"
	EventKindPresence = "presence"
)

// Event is a post-commit notification for dashboards and downstream consumers.
type Event interface {
	EventKind() string
}

// EventPublisher is the broadcast sink. Delivery is best-effort: an error is
// logged by the caller and never undoes the scan.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type ReceiptEvent struct {
	PurchaseOrderNumber string          `json:"po_number"`
	ItemNumber          string          `json:"item_number"`
	ItemDescription     string          `json:"item_description"`
	ReceivedQty         decimal.Decimal `json:"received_quantity"`
	ScannedQty          decimal.Decimal `json:"scanned_quantity"`
	OrderedQty          decimal.Decimal `json:"ordered_quantity"`
	RemainingQty        decimal.Decimal `json:"remaining_quantity"`
	LotNumber           string          `json:"lot_no"`
	EPC                 string          `json:"epc"`
	LocationName        string          `json:"location_name"`
	LocationStatus      string          `json:"location_status"`
	UserId              int             `json:"user_id"`
	Timestamp           time.Time       `json:"timestamp"`
}

func (ReceiptEvent) EventKind() string { return EventKindReceipt }

type PresenceEvent struct {
	ID                  int             `json:"id"`
	EPC                 string          `json:"epc"`
	UserId              int             `json:"user_id"`
	PurchaseOrderNumber string          `json:"po_number"`
	ItemNumber          string          `json:"item_number"`
	Quantity            decimal.Decimal `json:"quantity"`
	Status              string          `json:"status"`
	LocationName        string          `json:"location_name"`
	CreatedAt           time.Time       `json:"created_at"`
	Timestamp           time.Time       `json:"timestamp"`
	ActivityText        string          `json:"activity_text"`
}

func (PresenceEvent) EventKind() string { return EventKindPresence }

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RemainingQty is ordered minus received, floored at zero.
func RemainingQty(ordered, received decimal.Decimal) decimal.Decimal {
	remaining := ordered.Sub(received)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}
