package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// chunkSize mirrors parser.batch_size's default (§6): the max number
// of transactions per upsert statement.
const chunkSize = 300

// transactionRow is the gorm-mapped form of model.Transaction (§3, §4.7).
type transactionRow struct {
	ID          string `gorm:"primary_key;column:id"`
	Hash        string `gorm:"column:hash;index"`
	Chain       string `gorm:"column:chain;index"`
	AssetID     string `gorm:"column:asset_id;index"`
	FromAddr    string `gorm:"column:from_address;index"`
	ToAddr      string `gorm:"column:to_address;index"`
	Memo        string `gorm:"column:memo"`
	Type        string `gorm:"column:type"`
	State       string `gorm:"column:state"`
	BlockNumber uint64 `gorm:"column:block_number"`
	Sequence    uint64 `gorm:"column:sequence"`
	Fee         string `gorm:"column:fee"`
	FeeAssetID  string `gorm:"column:fee_asset_id"`
	Value       string `gorm:"column:value"`
	UTXOJSON    string `gorm:"column:utxo_json;type:text"`
	MetaJSON    string `gorm:"column:meta_json;type:text"`
	CreatedAt   time.Time
}

func (transactionRow) TableName() string { return "transactions" }

type utxoJSON struct {
	Inputs  []model.UTXOEntry `json:"inputs,omitempty"`
	Outputs []model.UTXOEntry `json:"outputs,omitempty"`
}

func fromModel(t model.Transaction) transactionRow {
	u, _ := json.Marshal(utxoJSON{Inputs: t.UTXOInputs, Outputs: t.UTXOOutputs})
	m, _ := json.Marshal(t.Metadata)
	return transactionRow{
		ID:          t.ID,
		Hash:        t.Hash,
		Chain:       string(t.Chain),
		AssetID:     t.AssetID.String(),
		FromAddr:    t.From,
		ToAddr:      t.To,
		Memo:        t.Memo,
		Type:        t.Type,
		State:       string(t.State),
		BlockNumber: t.BlockNumber,
		Sequence:    t.Sequence,
		Fee:         t.Fee,
		FeeAssetID:  t.FeeAssetID.String(),
		Value:       t.Value,
		UTXOJSON:    string(u),
		MetaJSON:    string(m),
		CreatedAt:   t.CreatedAt,
	}
}

func (r transactionRow) toModel() model.Transaction {
	assetID, _ := asset.Parse(r.AssetID)
	feeAssetID, _ := asset.Parse(r.FeeAssetID)
	var u utxoJSON
	_ = json.Unmarshal([]byte(r.UTXOJSON), &u)
	var meta map[string]string
	_ = json.Unmarshal([]byte(r.MetaJSON), &meta)
	return model.Transaction{
		ID:          r.ID,
		Hash:        r.Hash,
		Chain:       config.Chain(r.Chain),
		AssetID:     assetID,
		From:        r.FromAddr,
		To:          r.ToAddr,
		Memo:        r.Memo,
		Type:        r.Type,
		State:       model.State(r.State),
		BlockNumber: r.BlockNumber,
		Sequence:    r.Sequence,
		Fee:         r.Fee,
		FeeAssetID:  feeAssetID,
		Value:       r.Value,
		UTXOInputs:  u.Inputs,
		UTXOOutputs: u.Outputs,
		Metadata:    meta,
	}
}

// TransactionStore implements C4: canonical transaction storage with
// idempotent batch upsert, chunked at 300 rows (§4.3 step 4, §6
// parser.batch_size).
type TransactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// UpsertBatch writes txs in chunks of chunkSize. Each row is
// upserted by id ("chain_hash"); re-delivery of the same payload is a
// net no-op (§4.3: "C4 insert is upsert-by-id").
func (s *TransactionStore) UpsertBatch(ctx context.Context, txs []model.Transaction) error {
	for start := 0; start < len(txs); start += chunkSize {
		end := start + chunkSize
		if end > len(txs) {
			end = len(txs)
		}
		if err := s.upsertChunk(txs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *TransactionStore) upsertChunk(chunk []model.Transaction) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range chunk {
			row := fromModel(t)
			var existing transactionRow
			err := tx.Where("id = ?", row.ID).First(&existing).Error
			switch {
			case gorm.IsRecordNotFoundError(err):
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				row.CreatedAt = existing.CreatedAt
				if err := tx.Save(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetByID fetches one transaction by its "chain_hash" id. The
// notifications path does not call it: it finalizes the transaction
// from the block payload directly.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (model.Transaction, bool, error) {
	var row transactionRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return model.Transaction{}, false, nil
	}
	if err != nil {
		return model.Transaction{}, false, err
	}
	return row.toModel(), true, nil
}

// KnownAssets reports which of ids already have a row in the asset
// metadata cache this store fronts (§4.3 step 3d's pre-insert guard:
// "drops transactions whose referenced assets are not yet present").
// Transactions referencing unknown assets are dropped by the caller
// rather than inserted with a dangling reference.
func (s *TransactionStore) KnownAssets(ctx context.Context, ids []asset.ID) (map[string]bool, error) {
	known := map[string]bool{}
	if len(ids) == 0 {
		return known, nil
	}
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}
	var rows []assetMetaRow
	if err := s.db.Where("asset_id IN (?)", idStrs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		known[r.AssetID] = true
	}
	return known, nil
}

// assetMetaRow caches chain.Asset metadata (name/symbol/decimals)
// resolved by the fetch-assets consumer (§4.4's FetchAssets queue),
// keyed by its string asset id.
type assetMetaRow struct {
	AssetID  string `gorm:"primary_key;column:asset_id"`
	Name     string
	Symbol   string
	Decimals int
	Type     string
}

func (assetMetaRow) TableName() string { return "asset_metadata" }
