package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// deadLetterRow is the gorm-mapped form of model.DeadLetter, the
// parser_deadletter(chain, block, reason) table the design note in
// §9 calls for.
type deadLetterRow struct {
	ID        string `gorm:"primary_key;column:id"`
	Chain     string `gorm:"column:chain;index"`
	Block     uint64 `gorm:"column:block"`
	Reason    string `gorm:"column:reason"`
	Attempts  int    `gorm:"column:attempts"`
	CreatedAt time.Time
}

func (deadLetterRow) TableName() string { return "parser_deadletter" }

// DeadLetterStore records blocks the Block Parser could not process
// after its bounded retry budget.
type DeadLetterStore struct {
	db *gorm.DB
}

func NewDeadLetterStore(db *gorm.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Record inserts a new dead-letter entry for chain/block.
func (s *DeadLetterStore) Record(ctx context.Context, chain config.Chain, block uint64, reason string, attempts int) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	row := deadLetterRow{
		ID:        id.String(),
		Chain:     string(chain),
		Block:     block,
		Reason:    reason,
		Attempts:  attempts,
		CreatedAt: time.Now(),
	}
	return s.db.Create(&row).Error
}

// List returns every dead-letter entry for chain, most recent first,
// for operator inspection. The runner's /status endpoint does not
// include these entries.
func (s *DeadLetterStore) List(ctx context.Context, chain config.Chain) ([]model.DeadLetter, error) {
	var rows []deadLetterRow
	if err := s.db.Where("chain = ?", string(chain)).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DeadLetter, len(rows))
	for i, r := range rows {
		out[i] = model.DeadLetter{
			ID:        r.ID,
			Chain:     config.Chain(r.Chain),
			Block:     r.Block,
			Reason:    r.Reason,
			Attempts:  r.Attempts,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}
