package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"gorm.io/gorm"
)

// User is the acting operator or fixed reader station behind a scan.
// LocationName is stamped onto broadcast events.
type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	LocationName string    `gorm:"size:100;default:null" json:"location_name"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserById(tx *gorm.DB, id int) (*User, error) {
	var user User
	err := tx.Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, fmt.Errorf("user %d is inactive: %w", id, utils.ErrNotFound)
	}
	return &user, nil
}
