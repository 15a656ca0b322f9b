package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FulfillmentResult struct {
	Status  models.PurchaseOrderStatus `json:"status"`
	Changed bool                       `json:"changed"`
}

// ClassifyFulfillment derives order status from ordered vs received quantity
// per item. Only items on the order count.
//
//	all lines covered and something received -> Received
//	something received, some line short      -> Partial
//	nothing received                         -> Pending
func ClassifyFulfillment(ordered, received map[string]decimal.Decimal) models.PurchaseOrderStatus {
	allCovered := true
	anyReceived := false
	total := decimal.Zero
	for item, orderedQty := range ordered {
		got := received[item]
		if got.IsPositive() {
			anyReceived = true
			total = total.Add(got)
		}
		if got.LessThan(orderedQty) {
			allCovered = false
		}
	}
	switch {
	case allCovered && total.IsPositive():
		return models.PurchaseOrderStatusReceived
	case anyReceived:
		return models.PurchaseOrderStatusPartial
	default:
		return models.PurchaseOrderStatusPending
	}
}

// RecomputeStatus reconciles one order's status with its receipt ledger.
// Received and Cancelled are frozen. The row is written only when the status
// moves, and received_at is stamped on entry to Received. Safe to call after
// every scan.
func RecomputeStatus(tx *gorm.DB, purchaseOrderId int, now time.Time) (*FulfillmentResult, error) {
	po, err := models.LockPurchaseOrderForUpdate(tx, purchaseOrderId)
	if err != nil {
		return nil, err
	}
	if po.CurrentStatus.IsFrozen() {
		return &FulfillmentResult{Status: po.CurrentStatus}, nil
	}

	entries, err := models.GetReceiptLedgerEntries(tx, po.ID)
	if err != nil {
		return nil, err
	}
	next := ClassifyFulfillment(po.OrderedQtyByItem(), SumReceivedByItem(entries))
	if next == po.CurrentStatus {
		return &FulfillmentResult{Status: next}, nil
	}

	updates := map[string]interface{}{"current_status": next}
	if next == models.PurchaseOrderStatusReceived {
		updates["received_at"] = now
	}
	if err := tx.Model(&models.PurchaseOrder{}).Where("id = ?", po.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &FulfillmentResult{Status: next, Changed: true}, nil
}
