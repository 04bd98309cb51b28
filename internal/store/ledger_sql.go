package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// tradeRecord is the persisted row for a settled trade. Seq preserves
// insertion order independently of the clock.
type tradeRecord struct {
	Seq           uint64    `gorm:"primaryKey;autoIncrement"`
	TransactionID string    `gorm:"size:128;uniqueIndex;not null"`
	WalletID      string    `gorm:"size:64;index;not null"`
	CohortID      string    `gorm:"size:64;index:idx_trades_cohort_settled,priority:1;not null"`
	Amount        int64     `gorm:"not null"`
	Price         string    `gorm:"type:text;not null"`
	Side          string    `gorm:"size:4;not null"`
	Fee           string    `gorm:"type:text;not null"`
	SettledAt     time.Time `gorm:"index:idx_trades_cohort_settled,priority:2;not null"`
}

func (tradeRecord) TableName() string { return "trades" }

func toRecord(t domain.Trade) tradeRecord {
	return tradeRecord{
		TransactionID: t.TransactionID,
		WalletID:      t.WalletID,
		CohortID:      t.CohortID,
		Amount:        t.Amount,
		Price:         t.Price.String(),
		Side:          string(t.Side),
		Fee:           t.Fee.String(),
		SettledAt:     t.SettledAt.UTC(),
	}
}

func (r tradeRecord) toTrade() (domain.Trade, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade %s: bad price %q: %w", r.TransactionID, r.Price, err)
	}
	fee, err := decimal.NewFromString(r.Fee)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade %s: bad fee %q: %w", r.TransactionID, r.Fee, err)
	}
	return domain.Trade{
		TransactionID: r.TransactionID,
		WalletID:      r.WalletID,
		CohortID:      r.CohortID,
		Amount:        r.Amount,
		Price:         price,
		Side:          domain.Side(r.Side),
		Fee:           fee,
		SettledAt:     r.SettledAt.UTC(),
	}, nil
}

// SQLLedger is a Ledger backed by gorm. It runs on SQLite (pure Go
// driver) or Postgres depending on the DSN.
type SQLLedger struct {
	db *gorm.DB
}

// OpenSQLLedger opens the database named by dsn and migrates the trades
// table. A dsn starting with postgres:// or postgresql:// selects the
// Postgres driver; anything else is treated as a SQLite file path.
func OpenSQLLedger(dsn string) (*SQLLedger, error) {
	var dialector gorm.Dialector
	isSQLite := !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://")
	if !isSQLite {
		dialector = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create ledger directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}

	// SQLite allows a single writer; funnel everything through one
	// connection so concurrent appends queue instead of failing busy.
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access ledger connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&tradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	return &SQLLedger{db: db}, nil
}

// Close releases the underlying connection pool.
func (l *SQLLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *SQLLedger) Append(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	rec := toRecord(t)
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return domain.Trade{}, fmt.Errorf("append trade %s: %w", t.TransactionID, res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := l.Get(ctx, t.TransactionID)
		if err != nil {
			return domain.Trade{}, fmt.Errorf("load duplicate trade %s: %w", t.TransactionID, err)
		}
		return existing, domain.ErrDuplicateTransaction
	}
	return rec.toTrade()
}

func (l *SQLLedger) Get(ctx context.Context, id string) (domain.Trade, error) {
	var rec tradeRecord
	err := l.db.WithContext(ctx).Where("transaction_id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Trade{}, domain.ErrTransactionNotFound
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("get trade %s: %w", id, err)
	}
	return rec.toTrade()
}

func (l *SQLLedger) ListByWallet(ctx context.Context, walletID string) ([]domain.Trade, error) {
	var recs []tradeRecord
	err := l.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list trades for wallet %s: %w", walletID, err)
	}
	return toTrades(recs)
}

func (l *SQLLedger) ListByCohort(ctx context.Context, cohortID string, since time.Time) ([]domain.Trade, error) {
	q := l.db.WithContext(ctx).Where("cohort_id = ?", cohortID)
	if !since.IsZero() {
		q = q.Where("settled_at >= ?", since.UTC())
	}
	var recs []tradeRecord
	if err := q.Order("settled_at ASC").Order("seq ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list trades for cohort %s: %w", cohortID, err)
	}
	return toTrades(recs)
}

func toTrades(recs []tradeRecord) ([]domain.Trade, error) {
	result := make([]domain.Trade, 0, len(recs))
	for _, r := range recs {
		t, err := r.toTrade()
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}
