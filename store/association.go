package store

import (
	"context"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// associationRow is the gorm-mapped form of model.Association (§3),
// composite-keyed by (asset_id, address). Active tracks whether the
// address currently holds the asset; it is cleared when a later
// balance refresh finds it empty rather than deleting the row, so
// get_assets_by_addresses can still answer history queries that don't
// pass active_only.
type associationRow struct {
	AssetID   string    `gorm:"column:asset_id;primary_key"`
	Address   string    `gorm:"column:address;primary_key"`
	Chain     string    `gorm:"column:chain;index"`
	Active    bool      `gorm:"column:active;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (associationRow) TableName() string { return "associations" }

func (r associationRow) toModel() model.Association {
	return model.Association{
		AssetID:   r.AssetID,
		Address:   r.Address,
		Chain:     config.Chain(r.Chain),
		CreatedAt: r.CreatedAt,
	}
}

// AssociationStore records the asset-at-address discoveries driven by
// the Address-Association Fan-out (C8).
type AssociationStore struct {
	db *gorm.DB
}

func NewAssociationStore(db *gorm.DB) *AssociationStore {
	return &AssociationStore{db: db}
}

// Upsert records that assetID was seen at address. A previously
// unknown pair is inserted as active; a pair already known but marked
// inactive (balance had gone to zero) is reactivated. Otherwise it is
// a no-op.
func (s *AssociationStore) Upsert(ctx context.Context, chain config.Chain, address, assetID string) error {
	var existing associationRow
	err := s.db.Where("asset_id = ? AND address = ?", assetID, address).First(&existing).Error
	if gorm.IsRecordNotFoundError(err) {
		now := time.Now()
		row := associationRow{AssetID: assetID, Address: address, Chain: string(chain), Active: true, CreatedAt: now, UpdatedAt: now}
		return s.db.Create(&row).Error
	}
	if err != nil {
		return err
	}
	if !existing.Active {
		return s.db.Model(&existing).Updates(map[string]interface{}{"active": true, "updated_at": time.Now()}).Error
	}
	return nil
}

// Deactivate marks a known (asset, address) pair inactive without
// deleting it, for when a balance refresh finds the address no longer
// holds assetID.
func (s *AssociationStore) Deactivate(ctx context.Context, chain config.Chain, address, assetID string) error {
	return s.db.Model(&associationRow{}).
		Where("asset_id = ? AND address = ?", assetID, address).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()}).Error
}

// ByAddress returns every asset known to be associated with address.
func (s *AssociationStore) ByAddress(ctx context.Context, address string) ([]model.Association, error) {
	var rows []associationRow
	if err := s.db.Where("address = ?", address).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Association, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetAssetsByAddresses answers get_assets_by_addresses(addresses,
// from_timestamp, active_only) (§4.8): every distinct asset id
// associated with any of addresses, optionally restricted to
// associations first discovered at or after fromTimestamp and/or
// still active. The mobile client calls this to refresh balances on
// wake without re-walking every chain.
func (s *AssociationStore) GetAssetsByAddresses(ctx context.Context, addresses []string, fromTimestamp time.Time, activeOnly bool) ([]string, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	q := s.db.Model(&associationRow{}).Where("address IN (?)", addresses)
	if !fromTimestamp.IsZero() {
		q = q.Where("created_at >= ?", fromTimestamp)
	}
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var rows []associationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.AssetID]; ok {
			continue
		}
		seen[r.AssetID] = struct{}{}
		out = append(out, r.AssetID)
	}
	return out, nil
}
