package db

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
)

type entry struct {
	kind    string
	payload []byte
	version uint64
}

// Хранилище в памяти: оптимистичные версии, проверка при коммите, без ожиданий
type MemoryDB struct {
	mu      sync.RWMutex
	records map[identity.Identity]entry
	logger  *zap.Logger
}

func NewMemoryDB(logger *zap.Logger) *MemoryDB {
	return &MemoryDB{
		records: make(map[identity.Identity]entry),
		logger:  logger,
	}
}

func (m *MemoryDB) Atomic(ctx context.Context, fn func(tx interf.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		db:      m,
		reads:   make(map[identity.Identity]uint64),
		writes:  make(map[identity.Identity]entry),
		creates: make(map[identity.Identity]struct{}),
	}
	if err := fn(tx); err != nil {
		tx.rollback.run()
		return err
	}
	if err := m.commit(tx); err != nil {
		tx.rollback.run()
		return err
	}
	tx.hooks.run()
	return nil
}

func (m *MemoryDB) commit(tx *memoryTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// проигранная гонка создания - это AlreadyExists, а не конфликт
	for id := range tx.creates {
		if _, ok := m.records[id]; ok {
			return fmt.Errorf("record %s: %w", id, model.ErrAlreadyExists)
		}
	}
	for id, seen := range tx.reads {
		if m.records[id].version != seen {
			m.logger.Debug("write conflict", zap.String("id", id.String()))
			return fmt.Errorf("record %s: %w", id, model.ErrConflict)
		}
	}
	for id, e := range tx.writes {
		e.version = m.records[id].version + 1
		m.records[id] = e
	}
	return nil
}

func (m *MemoryDB) Read(ctx context.Context, id identity.Identity, rec interf.Record) error {
	m.mu.RLock()
	e, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
	}
	return decode(e.kind, e.payload, rec)
}

func (m *MemoryDB) Scan(ctx context.Context, kind string, fn func(id identity.Identity, payload []byte) error) error {
	m.mu.RLock()
	type item struct {
		id      identity.Identity
		payload []byte
	}
	items := make([]item, 0)
	for id, e := range m.records {
		if e.kind == kind {
			items = append(items, item{id, e.payload})
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].id[:], items[j].id[:]) < 0
	})
	for _, it := range items {
		if err := fn(it.id, it.payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Close() {}

type memoryTx struct {
	db       *MemoryDB
	reads    map[identity.Identity]uint64 // версия на момент чтения, 0 - записи не было
	writes   map[identity.Identity]entry
	creates  map[identity.Identity]struct{}
	hooks    hooks
	rollback hooks
}

func (t *memoryTx) load(id identity.Identity) (entry, bool) {
	if e, ok := t.writes[id]; ok {
		return e, true
	}
	t.db.mu.RLock()
	e, ok := t.db.records[id]
	t.db.mu.RUnlock()
	if _, seen := t.reads[id]; !seen {
		t.reads[id] = e.version
	}
	return e, ok
}

func (t *memoryTx) Create(ctx context.Context, id identity.Identity, rec interf.Record) error {
	if _, ok := t.load(id); ok {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrAlreadyExists)
	}
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	t.writes[id] = entry{kind: rec.Kind(), payload: payload}
	t.creates[id] = struct{}{}
	return nil
}

func (t *memoryTx) Get(ctx context.Context, id identity.Identity, rec interf.Record) error {
	e, ok := t.load(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
	}
	return decode(e.kind, e.payload, rec)
}

func (t *memoryTx) Put(ctx context.Context, id identity.Identity, rec interf.Record) error {
	e, ok := t.load(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
	}
	if e.kind != rec.Kind() {
		return fmt.Errorf("record is %s, expected %s: %w", e.kind, rec.Kind(), model.ErrInvalidInput)
	}
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	t.writes[id] = entry{kind: rec.Kind(), payload: payload}
	return nil
}

func (t *memoryTx) OnCommit(fn func()) {
	t.hooks.add(fn)
}

func (t *memoryTx) OnRollback(fn func()) {
	t.rollback.add(fn)
}
