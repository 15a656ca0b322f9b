package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ScanLine is one resolved scan headed for the receipt ledger.
type ScanLine struct {
	PurchaseOrder   *models.PurchaseOrder
	ItemNumber      string
	ItemDescription string
	TagCode         string
	LotNumber       string
	Quantity        decimal.Decimal
	UserId          int
	ScannedAt       time.Time
}

type ApplyResult struct {
	Entries []models.LedgerEntry
	// Entry is the ledger line for this (item, tag), new or pre-existing.
	Entry    models.LedgerEntry
	Appended bool
}

// FindLedgerEntry looks up the entry for an exact (item, tag) pair.
func FindLedgerEntry(entries []models.LedgerEntry, itemNumber, tagCode string) (models.LedgerEntry, bool) {
	for _, e := range entries {
		if e.ItemNumber == itemNumber && e.TagCode == tagCode {
			return e, true
		}
	}
	return models.LedgerEntry{}, false
}

// AppendLedgerEntry adds entry unless its (item, tag) pair is already present.
// Entries from different tags are never merged, even for the same item.
func AppendLedgerEntry(entries []models.LedgerEntry, entry models.LedgerEntry) ([]models.LedgerEntry, bool) {
	if _, ok := FindLedgerEntry(entries, entry.ItemNumber, entry.TagCode); ok {
		return entries, false
	}
	out := make([]models.LedgerEntry, 0, len(entries)+1)
	out = append(out, entries...)
	out = append(out, entry)
	return out, true
}

// SumReceived totals every tag's contribution for one item.
func SumReceived(entries []models.LedgerEntry, itemNumber string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.ItemNumber == itemNumber {
			total = total.Add(e.ReceivedQty)
		}
	}
	return total
}

func SumReceivedByItem(entries []models.LedgerEntry) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		out[e.ItemNumber] = out[e.ItemNumber].Add(e.ReceivedQty)
	}
	return out
}

// ApplyScan appends the scan to the order's receipt ledger. The caller must
// hold the order's receipt lock; the ledger row is additionally read FOR UPDATE.
// A repeated (item, tag) pair leaves the ledger untouched.
func ApplyScan(tx *gorm.DB, line ScanLine) (*ApplyResult, error) {
	ledger, err := models.LoadReceiptLedgerForUpdate(tx, line.PurchaseOrder)
	if err != nil {
		return nil, err
	}
	entries, err := ledger.DecodeEntries()
	if err != nil {
		return nil, err
	}

	if existing, ok := FindLedgerEntry(entries, line.ItemNumber, line.TagCode); ok {
		return &ApplyResult{Entries: entries, Entry: existing}, nil
	}

	entry := models.LedgerEntry{
		ItemNumber:      line.ItemNumber,
		ItemDescription: line.ItemDescription,
		ReceivedQty:     line.Quantity,
		OrderedQty:      line.PurchaseOrder.OrderedQty(line.ItemNumber),
		LotNumber:       line.LotNumber,
		TagCode:         line.TagCode,
		UserId:          line.UserId,
		ReceivedAt:      line.ScannedAt,
	}
	entries, _ = AppendLedgerEntry(entries, entry)
	if err := ledger.SetEntries(entries); err != nil {
		return nil, err
	}

	if ledger.ID == 0 {
		ledger.Version = 1
		if err := tx.Create(ledger).Error; err != nil {
			return nil, err
		}
	} else {
		if err := tx.Model(&models.ReceiptLedger{}).
			Where("id = ?", ledger.ID).
			Updates(map[string]interface{}{
				"entries": ledger.Entries,
				"version": gorm.Expr("version + 1"),
			}).Error; err != nil {
			return nil, err
		}
	}

	return &ApplyResult{Entries: entries, Entry: entry, Appended: true}, nil
}
