package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PresenceState is an append-only log of in/out decisions per tag. Only the
// newest row for a tag code drives the next decision.
type PresenceState struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	TagCode             string          `gorm:"size:255;not null;index:idx_presence_tag_seen,priority:1" json:"epc"`
	Status              PresenceStatus  `gorm:"type:enum('in','out');not null" json:"status"`
	PurchaseOrderNumber string          `gorm:"size:100" json:"po_number"`
	ItemNumber          string          `gorm:"size:100" json:"item_number"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UserId              int             `gorm:"index" json:"user_id"`
	LocationName        string          `gorm:"size:100" json:"location_name"`
	SeenAt              time.Time       `gorm:"not null;index:idx_presence_tag_seen,priority:2" json:"seen_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// GetLatestPresenceState returns nil, nil when the tag has never been seen.
func GetLatestPresenceState(tx *gorm.DB, tagCode string) (*PresenceState, error) {
	var state PresenceState
	err := tx.Where("tag_code = ?", tagCode).
		Order("seen_at DESC").
		Order("id DESC").
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
