package store

import (
	"context"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/omniwallet/chain-indexer/model"
)

// deviceRow is the gorm-mapped form of model.Device (§3).
type deviceRow struct {
	ID        string `gorm:"primary_key;column:id"`
	DeviceID  string `gorm:"column:device_id;index"`
	Platform  string `gorm:"column:platform"`
	Token     string `gorm:"column:token"`
	PublicKey string `gorm:"column:public_key"`
	Locale    string `gorm:"column:locale"`
	Currency  string `gorm:"column:currency"`
	UpdatedAt time.Time
}

func (deviceRow) TableName() string { return "devices" }

func (r deviceRow) toModel() model.Device {
	return model.Device{
		ID:        r.ID,
		DeviceID:  r.DeviceID,
		Platform:  r.Platform,
		Token:     r.Token,
		PublicKey: r.PublicKey,
		Locale:    r.Locale,
		Currency:  r.Currency,
		UpdatedAt: r.UpdatedAt,
	}
}

// DeviceStore resolves push tokens for the Transactions Consumer (C7)
// and serves the (out of scope) API layer's device registration.
type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// Upsert registers or updates d.
func (s *DeviceStore) Upsert(ctx context.Context, d model.Device) error {
	row := deviceRow{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		Platform:  d.Platform,
		Token:     d.Token,
		PublicKey: d.PublicKey,
		Locale:    d.Locale,
		Currency:  d.Currency,
		UpdatedAt: time.Now(),
	}
	return s.db.Save(&row).Error
}

// Get resolves one device by its device id, used by the Transactions
// Consumer to fetch the current push Token before it builds the
// PushMessage it publishes.
func (s *DeviceStore) Get(ctx context.Context, deviceID string) (model.Device, bool, error) {
	var row deviceRow
	err := s.db.Where("device_id = ?", deviceID).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return model.Device{}, false, nil
	}
	if err != nil {
		return model.Device{}, false, err
	}
	return row.toModel(), true, nil
}
