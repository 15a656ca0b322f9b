package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseOrder status is derived by the fulfillment engine; clients never
// set it during reconciliation.
type PurchaseOrder struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	OrderNumber   string                `gorm:"size:100;not null;uniqueIndex" json:"order_number"`
	CurrentStatus PurchaseOrderStatus   `gorm:"type:enum('Pending','Partial','Received','Cancelled');not null;default:Pending" json:"current_status"`
	ReceivedAt    *time.Time            `gorm:"default:null" json:"received_at"`
	Details       []PurchaseOrderDetail `json:"purchase_order_details"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemNumber      string          `gorm:"size:100;not null" json:"item_number"`
	OrderedQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"ordered_qty"`
}

func GetPurchaseOrderByNumber(tx *gorm.DB, orderNumber string) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := tx.Preload("Details").Where("order_number = ?", orderNumber).Take(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("purchase order %q: %w", orderNumber, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// LockPurchaseOrderForUpdate re-reads the order row under FOR UPDATE so the
// status write cannot race an administrative cancel.
func LockPurchaseOrderForUpdate(tx *gorm.DB, id int) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Details").
		Where("id = ?", id).
		Take(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("purchase order id=%d: %w", id, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// OrderedQtyByItem sums ordered quantity per item; an item may appear on several lines.
func (po PurchaseOrder) OrderedQtyByItem() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(po.Details))
	for _, d := range po.Details {
		out[d.ItemNumber] = out[d.ItemNumber].Add(d.OrderedQty)
	}
	return out
}

// OrderedQty returns the ordered quantity for one item, zero when not on the order.
func (po PurchaseOrder) OrderedQty(itemNumber string) decimal.Decimal {
	return po.OrderedQtyByItem()[itemNumber]
}

// ListOpenPurchaseOrderNumbers returns orders whose status can still move.
func ListOpenPurchaseOrderNumbers(tx *gorm.DB) ([]string, error) {
	var numbers []string
	err := tx.Model(&PurchaseOrder{}).
		Where("current_status IN ?", []PurchaseOrderStatus{PurchaseOrderStatusPending, PurchaseOrderStatusPartial}).
		Order("id ASC").
		Pluck("order_number", &numbers).Error
	return numbers, err
}
