// Package store implements the Postgres-backed persistence layer:
// ParserStateStore (C2), the Subscription Index (C3), the Transaction
// Store (C4), and the address-association and dead-letter tables, all
// via jinzhu/gorm.
package store

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/lib/pq"

	ilog "github.com/omniwallet/chain-indexer/internal/log"
)

var logger = ilog.NewModuleLogger(ilog.Store)

// Open connects to a Postgres DSN and runs AutoMigrate over every
// table this package owns.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetLogger(gormLogAdapter{})
	if err := db.AutoMigrate(
		&parserStateRow{},
		&transactionRow{},
		&subscriptionRow{},
		&deviceRow{},
		&associationRow{},
		&deadLetterRow{},
		&assetMetaRow{},
	).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}
	return db, nil
}

type gormLogAdapter struct{}

func (gormLogAdapter) Print(v ...interface{}) {
	logger.Debug("gorm", "msg", fmt.Sprint(v...))
}
