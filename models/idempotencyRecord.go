package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IdempotencyRecord marks a (tag, item, purchase order) triple as having
// contributed quantity. Unique constraint: uniq_receipt_idem.
type IdempotencyRecord struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	TagCode             string          `gorm:"size:255;not null;index:uniq_receipt_idem,unique" json:"tag_code"`
	ItemNumber          string          `gorm:"size:100;not null;index:uniq_receipt_idem,unique" json:"item_number"`
	PurchaseOrderNumber string          `gorm:"size:100;not null;index:uniq_receipt_idem,unique" json:"po_number"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
