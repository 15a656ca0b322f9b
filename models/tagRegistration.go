package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TagRegistration maps a scanned EPC onto a purchase-order line.
// Rows are provisioned ahead of time and never mutated by reconciliation.
type TagRegistration struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	Code                string          `gorm:"size:255;not null;uniqueIndex" json:"code"`
	PurchaseOrderNumber string          `gorm:"size:100;not null;index" json:"po_number"`
	LotNumber           string          `gorm:"size:100" json:"lot_no"`
	ItemNumber          string          `gorm:"size:100;not null" json:"item_number"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetTagRegistrationByCode(tx *gorm.DB, code string) (*TagRegistration, error) {
	var tag TagRegistration
	err := tx.Where("code = ?", code).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tag code %q: %w", code, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}
