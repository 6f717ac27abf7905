package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"settlenet/core/events"
	"settlenet/core/types"
	"settlenet/native/ledger"
)

// BalanceRecord is one signed ledger delta, the unit auditors replay to
// reconstruct balances independently of the live state.
type BalanceRecord struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Account   string `gorm:"index"`
	Asset     string `gorm:"index"`
	Delta     string
	Reason    string
	Nonce     uint64
}

// EventRecord preserves every other emitted event with its attributes as JSON.
type EventRecord struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	Type       string `gorm:"index"`
	Attributes string
}

type attributed interface {
	Event() *types.Event
}

// Recorder persists the event stream to a relational audit trail. It
// implements events.Emitter, so engines stay unaware of it. Persistence
// failures are logged rather than propagated: the audit trail must never veto
// settlement.
type Recorder struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open creates or opens the audit database at path and migrates its schema.
func Open(path string, log *slog.Logger) (*Recorder, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&BalanceRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Recorder{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.db == nil || evt == nil {
		return
	}
	a, ok := evt.(attributed)
	if !ok {
		return
	}
	e := a.Event()
	if e == nil {
		return
	}
	if e.Type == ledger.EventTypeBalanceChange {
		r.recordBalanceChange(e)
		return
	}
	raw, err := json.Marshal(e.Attributes)
	if err != nil {
		r.log.Error("audit: encode event", "type", e.Type, "err", err)
		return
	}
	if err := r.db.Create(&EventRecord{Type: e.Type, Attributes: string(raw)}).Error; err != nil {
		r.log.Error("audit: persist event", "type", e.Type, "err", err)
	}
}

func (r *Recorder) recordBalanceChange(e *types.Event) {
	nonce, _ := strconv.ParseUint(e.Attributes["nonce"], 10, 64)
	rec := &BalanceRecord{
		Account: e.Attributes["account"],
		Asset:   e.Attributes["asset"],
		Delta:   e.Attributes["delta"],
		Reason:  e.Attributes["reason"],
		Nonce:   nonce,
	}
	if err := r.db.Create(rec).Error; err != nil {
		r.log.Error("audit: persist balance change", "account", rec.Account, "err", err)
	}
}

// Reconstruct replays the recorded deltas for one asset and returns the
// implied balance per account. Comparing the result against live state is the
// auditor's consistency check.
func (r *Recorder) Reconstruct(asset string) (map[string]*big.Int, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("audit: recorder not open")
	}
	var records []BalanceRecord
	if err := r.db.Where("asset = ?", asset).Order("id asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: load records: %w", err)
	}
	balances := make(map[string]*big.Int)
	for _, rec := range records {
		delta, ok := new(big.Int).SetString(rec.Delta, 10)
		if !ok {
			return nil, fmt.Errorf("audit: corrupt delta %q in record %d", rec.Delta, rec.ID)
		}
		current, ok := balances[rec.Account]
		if !ok {
			current = big.NewInt(0)
		}
		balances[rec.Account] = current.Add(current, delta)
	}
	for account, balance := range balances {
		if balance.Sign() == 0 {
			delete(balances, account)
		}
	}
	return balances, nil
}
