package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"gorm.io/gorm"
)

type Item struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ItemNumber  string    `gorm:"size:100;not null;uniqueIndex" json:"item_number"`
	Description string    `gorm:"size:255;default:null" json:"description"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetItemByNumber(tx *gorm.DB, itemNumber string) (*Item, error) {
	var item Item
	err := tx.Where("item_number = ?", itemNumber).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("item %q: %w", itemNumber, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
