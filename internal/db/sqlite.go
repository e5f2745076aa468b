package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS records_kind_idx ON records (kind);
`

// Локальное хранилище: одно соединение, транзакции выполняются по очереди
type SQLiteDB struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteDB(ctx context.Context, path string, logger *zap.Logger) (*SQLiteDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("env AMPERE_SQLITE_PATH is not set")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &SQLiteDB{db, logger}, nil
}

func (s *SQLiteDB) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Close sqlite error", zap.Error(err))
	}
}

func (s *SQLiteDB) logSQL(err error, query string, args []any) {
	s.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", query),
		zap.Any("args", args),
	)
}

func (s *SQLiteDB) Atomic(ctx context.Context, fn func(tx interf.Tx) error) (err error) {
	sqltx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Begin tx error", zap.Error(err), zap.String("service", "Atomic"))
		return err
	}
	tx := &sqliteTx{tx: sqltx, db: s}
	defer func() {
		if err != nil {
			sqltx.Rollback()
			tx.rollback.run()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqltx.Commit(); err != nil {
		s.logger.Error("Commit error", zap.Error(err), zap.String("service", "Atomic"))
		return err
	}
	tx.hooks.run()
	return nil
}

func (s *SQLiteDB) Read(ctx context.Context, id identity.Identity, rec interf.Record) error {
	return selectRecord(ctx, s.db, s, id, rec)
}

func (s *SQLiteDB) Scan(ctx context.Context, kind string, fn func(id identity.Identity, payload []byte) error) error {
	query, args, err := sq.Select("id", "payload").
		From("records").
		Where(sq.Eq{"kind": kind}).
		OrderBy("id").
		ToSql()
	if err != nil {
		s.logSQL(err, query, args)
		return err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logSQL(err, query, args)
		return err
	}

	// соединение одно, поэтому сначала вычитываем все строки
	type item struct {
		id      identity.Identity
		payload []byte
	}
	var items []item
	for rows.Next() {
		var rawid string
		var payload []byte
		if err = rows.Scan(&rawid, &payload); err != nil {
			rows.Close()
			return err
		}
		id, err := identity.Parse(rawid)
		if err != nil {
			rows.Close()
			return err
		}
		items = append(items, item{id, payload})
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, it := range items {
		if err = fn(it.id, it.payload); err != nil {
			return err
		}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectRecord(ctx context.Context, q queryer, s *SQLiteDB, id identity.Identity, rec interf.Record) error {
	query, args, err := sq.Select("kind", "payload").
		From("records").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		s.logSQL(err, query, args)
		return err
	}
	var kind string
	var payload []byte
	err = q.QueryRowContext(ctx, query, args...).Scan(&kind, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
		}
		s.logSQL(err, query, args)
		return err
	}
	return decode(kind, payload, rec)
}

type sqliteTx struct {
	tx       *sql.Tx
	db       *SQLiteDB
	hooks    hooks
	rollback hooks
}

func (t *sqliteTx) Create(ctx context.Context, id identity.Identity, rec interf.Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	query, args, err := sq.Insert("records").
		Columns("id", "kind", "payload").
		Values(id.String(), rec.Kind(), payload).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		t.db.logSQL(err, query, args)
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		t.db.logSQL(err, query, args)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrAlreadyExists)
	}
	return nil
}

func (t *sqliteTx) Get(ctx context.Context, id identity.Identity, rec interf.Record) error {
	return selectRecord(ctx, t.tx, t.db, id, rec)
}

func (t *sqliteTx) Put(ctx context.Context, id identity.Identity, rec interf.Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	query, args, err := sq.Update("records").
		Set("payload", payload).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": id.String(), "kind": rec.Kind()}).
		ToSql()
	if err != nil {
		t.db.logSQL(err, query, args)
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		t.db.logSQL(err, query, args)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) OnCommit(fn func()) {
	t.hooks.add(fn)
}

func (t *sqliteTx) OnRollback(fn func()) {
	t.rollback.add(fn)
}
