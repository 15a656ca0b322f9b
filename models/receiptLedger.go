package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiptLedger is the per-order receipt document. Entries is a JSON array of
// LedgerEntry; one entry per distinct (item, tag) pair.
type ReceiptLedger struct {
	ID                  int            `gorm:"primary_key" json:"id"`
	PurchaseOrderId     int            `gorm:"not null;uniqueIndex" json:"purchase_order_id"`
	PurchaseOrderNumber string         `gorm:"size:100;not null;index" json:"po_number"`
	Entries             datatypes.JSON `json:"entries"`
	Version             int            `gorm:"not null;default:0" json:"version"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type LedgerEntry struct {
	ItemNumber      string          `json:"item_number"`
	ItemDescription string          `json:"item_description"`
	ReceivedQty     decimal.Decimal `json:"received_quantity"`
	OrderedQty      decimal.Decimal `json:"ordered_quantity"`
	LotNumber       string          `json:"lot_no"`
	TagCode         string          `json:"tag_code"`
	UserId          int             `json:"user_id"`
	ReceivedAt      time.Time       `json:"received_at"`
}

func (l ReceiptLedger) DecodeEntries() ([]LedgerEntry, error) {
	if len(l.Entries) == 0 {
		return nil, nil
	}
	var entries []LedgerEntry
	if err := json.Unmarshal(l.Entries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *ReceiptLedger) SetEntries(entries []LedgerEntry) error {
	if entries == nil {
		entries = []LedgerEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	l.Entries = datatypes.JSON(b)
	return nil
}

// LoadReceiptLedgerForUpdate returns the order's ledger row locked FOR UPDATE,
// or an unsaved empty ledger when none exists yet.
func LoadReceiptLedgerForUpdate(tx *gorm.DB, po *PurchaseOrder) (*ReceiptLedger, error) {
	var ledger ReceiptLedger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("purchase_order_id = ?", po.ID).
		Take(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ledger = ReceiptLedger{
			PurchaseOrderId:     po.ID,
			PurchaseOrderNumber: po.OrderNumber,
		}
		if err := ledger.SetEntries(nil); err != nil {
			return nil, err
		}
		return &ledger, nil
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// GetReceiptLedgerEntries reads the ledger without locking; a missing ledger is empty.
func GetReceiptLedgerEntries(tx *gorm.DB, purchaseOrderId int) ([]LedgerEntry, error) {
	var ledger ReceiptLedger
	err := tx.Where("purchase_order_id = ?", purchaseOrderId).Take(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ledger.DecodeEntries()
}
