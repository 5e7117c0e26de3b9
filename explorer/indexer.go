package explorer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lockyard/core/events"
	"lockyard/core/types"
)

// StoredEvent is the persisted form of an emitted ledger event, kept for
// off-chain observers and auditors.
type StoredEvent struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"index" json:"type"`
	Attributes string    `json:"attributes"`
	EmittedAt  time.Time `gorm:"index" json:"emittedAt"`
}

// Indexer subscribes to the ledger's event stream and records every event in
// a SQLite database. It satisfies events.Emitter so it can be fanned out next
// to other subscribers.
type Indexer struct {
	mu    sync.Mutex
	db    *gorm.DB
	log   *slog.Logger
	nowFn func() time.Time
}

// Open creates or opens the event index at the given SQLite DSN. Use
// "file::memory:?cache=shared" in tests.
func Open(dsn string, log *slog.Logger) (*Indexer, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("explorer: open index: %w", err)
	}
	if err := db.AutoMigrate(&StoredEvent{}); err != nil {
		return nil, fmt.Errorf("explorer: migrate index: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, log: log, nowFn: time.Now}, nil
}

// SetNowFunc overrides the timestamp source. Primarily intended for tests.
func (ix *Indexer) SetNowFunc(now func() time.Time) {
	if now == nil {
		ix.nowFn = time.Now
		return
	}
	ix.nowFn = now
}

// Emit implements events.Emitter. Indexing failures are logged, never
// propagated: the ledger operation has already committed and must not be
// affected by observer trouble.
func (ix *Indexer) Emit(evt events.Event) {
	if ix == nil || evt == nil {
		return
	}
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	converted := payload.Event()
	if converted == nil {
		return
	}
	attrs, err := json.Marshal(converted.Attributes)
	if err != nil {
		ix.log.Error("failed to encode event attributes", "type", converted.Type, "err", err)
		return
	}
	row := StoredEvent{
		ID:         uuid.NewString(),
		Type:       converted.Type,
		Attributes: string(attrs),
		EmittedAt:  ix.nowFn().UTC(),
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.db.Create(&row).Error; err != nil {
		ix.log.Error("failed to index event", "type", converted.Type, "err", err)
	}
}

// EventsByType returns up to limit events of the given type, newest first.
func (ix *Indexer) EventsByType(eventType string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []StoredEvent
	err := ix.db.
		Where("type = ?", eventType).
		Order("emitted_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// EventsByAttribute returns up to limit events whose attribute map contains
// the given key/value pair, newest first.
func (ix *Indexer) EventsByAttribute(key, value string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := fmt.Sprintf(`%%%q:%q%%`, key, value)
	var rows []StoredEvent
	err := ix.db.
		Where("attributes LIKE ?", pattern).
		Order("emitted_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Close releases the underlying database handle.
func (ix *Indexer) Close() error {
	raw, err := ix.db.DB()
	if err != nil {
		return err
	}
	return raw.Close()
}
