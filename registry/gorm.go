package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oneedge/gateway/interfaces"
)

// GormStore persists device records in PostgreSQL through GORM. Per-device
// serialization comes from SELECT ... FOR UPDATE row locks: a Mutate call
// holds the device's row for the length of its transaction, so two
// concurrent calls against the same device commit strictly one after the
// other while different devices proceed in parallel.
type GormStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewGormStore migrates the devices table and returns a store bound to db.
func NewGormStore(db *gorm.DB, log *slog.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&interfaces.Device{}); err != nil {
		return nil, fmt.Errorf("failed to migrate devices table: %w", err)
	}
	return &GormStore{db: db, log: log}, nil
}

// Get returns the record, or interfaces.ErrNotFound.
func (s *GormStore) Get(ctx context.Context, deviceID string) (*interfaces.Device, error) {
	var dev interfaces.Device
	err := s.db.WithContext(ctx).First(&dev, "device_id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device %q: %w", deviceID, err)
	}
	return &dev, nil
}

// List returns all records ordered by name.
func (s *GormStore) List(ctx context.Context) ([]*interfaces.Device, error) {
	var devices []*interfaces.Device
	if err := s.db.WithContext(ctx).Order("name asc").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Mutate runs fn inside a transaction with the device row locked FOR UPDATE.
// The transaction commits only when fn asks to persist; returning false or a
// storage fault rolls the whole call back.
func (s *GormStore) Mutate(ctx context.Context, deviceID string, fn interfaces.MutateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dev interfaces.Device
		found := true
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&dev, "device_id = ?", deviceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			dev = interfaces.Device{DeviceID: deviceID}
		} else if err != nil {
			return fmt.Errorf("failed to lock device %q: %w", deviceID, err)
		}

		if !fn(&dev, found) {
			return nil
		}

		if !found {
			// Concurrent first-contact creates resolve through the primary
			// key: the loser's insert turns into an update of the same row.
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&dev).Error; err != nil {
				return fmt.Errorf("failed to create device %q: %w", deviceID, err)
			}
			return nil
		}
		if err := tx.Save(&dev).Error; err != nil {
			return fmt.Errorf("failed to save device %q: %w", deviceID, err)
		}
		return nil
	})
}

// Delete removes the record permanently.
func (s *GormStore) Delete(ctx context.Context, deviceID string) error {
	result := s.db.WithContext(ctx).Delete(&interfaces.Device{}, "device_id = ?", deviceID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete device %q: %w", deviceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
