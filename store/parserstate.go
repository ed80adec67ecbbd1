package store

import (
	"context"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// parserStateRow is the gorm-mapped form of model.ParserState (§4.7):
// single-row-per-chain, no cross-row transactions needed since each
// chain is single-writer.
type parserStateRow struct {
	Chain        string `gorm:"primary_key;column:chain"`
	CurrentBlock uint64 `gorm:"column:current_block"`
	LatestBlock  uint64 `gorm:"column:latest_block"`
	AwaitBlocks  uint64 `gorm:"column:await_blocks"`
	UpdatedAt    time.Time
}

func (parserStateRow) TableName() string { return "parser_state" }

func (r parserStateRow) toModel() model.ParserState {
	return model.ParserState{
		Chain:        config.Chain(r.Chain),
		CurrentBlock: r.CurrentBlock,
		LatestBlock:  r.LatestBlock,
		AwaitBlocks:  r.AwaitBlocks,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ParserStateStore implements C2's three operations: get,
// set_current_block, set_latest_block, each a single-row upsert.
type ParserStateStore struct {
	db *gorm.DB
}

func NewParserStateStore(db *gorm.DB) *ParserStateStore {
	return &ParserStateStore{db: db}
}

// Get returns the chain's cursor, or the zero-value state (current =
// latest = 0) if the chain has never been seen, so a fresh deployment
// starts from block 0 without a special-cased bootstrap path.
func (s *ParserStateStore) Get(ctx context.Context, chain config.Chain) (model.ParserState, error) {
	var row parserStateRow
	err := s.db.Where("chain = ?", string(chain)).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return model.ParserState{Chain: chain}, nil
	}
	if err != nil {
		return model.ParserState{}, err
	}
	return row.toModel(), nil
}

// SetCurrentBlock upserts the chain's committed cursor. The Block
// Parser calls this after a block's transactions have been published
// successfully, or after it has dead-lettered a block whose fetch
// exhausted its retries.
func (s *ParserStateStore) SetCurrentBlock(ctx context.Context, chain config.Chain, height uint64) error {
	return s.upsert(ctx, chain, func(row *parserStateRow) { row.CurrentBlock = height })
}

// SetLatestBlock upserts the chain's observed tip, read once per poll
// iteration (§4.6 step 1).
func (s *ParserStateStore) SetLatestBlock(ctx context.Context, chain config.Chain, height uint64) error {
	return s.upsert(ctx, chain, func(row *parserStateRow) { row.LatestBlock = height })
}

func (s *ParserStateStore) upsert(ctx context.Context, chain config.Chain, apply func(*parserStateRow)) error {
	db := s.db
	var row parserStateRow
	err := db.Where("chain = ?", string(chain)).First(&row).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		row = parserStateRow{Chain: string(chain)}
		apply(&row)
		row.UpdatedAt = time.Now()
		return db.Create(&row).Error
	case err != nil:
		return err
	default:
		apply(&row)
		row.UpdatedAt = time.Now()
		return db.Save(&row).Error
	}
}
