package db

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         uuid PRIMARY KEY,
	kind       text NOT NULL,
	payload    jsonb NOT NULL,
	version    bigint NOT NULL DEFAULT 1,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS records_kind_idx ON records (kind);
`

type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresDB(ctx context.Context, dsn string, logger *zap.Logger) (db *PostgresDB, err error) {
	if dsn == "" {
		return nil, fmt.Errorf("env AMPERE_DB is not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresDB{pool, logger}, nil
}

// Создание таблицы записей
func (p *PostgresDB) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	if err != nil {
		p.logger.Error("Migrate error", zap.Error(err))
	}
	return err
}

func (p *PostgresDB) Close() {
	p.pool.Close()
}

func (p *PostgresDB) logSQL(err error, sql string, args []any) {
	p.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", sql),
		zap.Any("args", args),
	)
}

// Единица работы в одной транзакции БД
func (p *PostgresDB) Atomic(ctx context.Context, fn func(tx interf.Tx) error) (err error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		p.logger.Error("Get connection error", zap.Error(err), zap.String("service", "Atomic"))
		return err
	}
	defer conn.Release()

	pgtx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		p.logger.Error("Begin tx error", zap.Error(err), zap.String("service", "Atomic"))
		return err
	}
	tx := &postgresTx{tx: pgtx, db: p}
	defer func() {
		if err != nil {
			pgtx.Rollback(ctx)
			tx.rollback.run()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = pgtx.Commit(ctx); err != nil {
		p.logger.Error("Commit error", zap.Error(err), zap.String("service", "Atomic"))
		return err
	}
	tx.hooks.run()
	return nil
}

func (p *PostgresDB) Read(ctx context.Context, id identity.Identity, rec interf.Record) error {
	sql, args, err := sq.Select("kind", "payload").
		From("records").
		Where(sq.Eq{"id": id.String()}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		p.logSQL(err, sql, args)
		return err
	}
	var kind string
	var payload []byte
	err = p.pool.QueryRow(ctx, sql, args...).Scan(&kind, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
		}
		p.logSQL(err, sql, args)
		return err
	}
	return decode(kind, payload, rec)
}

// Обход всех записей типа
func (p *PostgresDB) Scan(ctx context.Context, kind string, fn func(id identity.Identity, payload []byte) error) error {
	sql, args, err := sq.Select("id", "payload").
		From("records").
		Where(sq.Eq{"kind": kind}).
		OrderBy("id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		p.logSQL(err, sql, args)
		return err
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		p.logSQL(err, sql, args)
		return err
	}
	defer rows.Close()

	var pguuid pgtype.UUID
	var payload []byte
	for rows.Next() {
		if err = rows.Scan(&pguuid, &payload); err != nil {
			return err
		}
		id, err := uuid.FromBytes(pguuid.Bytes[:])
		if err != nil {
			return err
		}
		if err = fn(identity.Identity(id), payload); err != nil {
			return err
		}
	}
	return rows.Err()
}

type postgresTx struct {
	tx       pgx.Tx
	db       *PostgresDB
	hooks    hooks
	rollback hooks
}

// INSERT ... ON CONFLICT DO NOTHING - атомарное создание, без чтения перед записью
func (t *postgresTx) Create(ctx context.Context, id identity.Identity, rec interf.Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	sql, args, err := sq.Insert("records").
		Columns("id", "kind", "payload").
		Values(id.String(), rec.Kind(), payload).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		t.db.logSQL(err, sql, args)
		return err
	}
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		t.db.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrAlreadyExists)
	}
	return nil
}

// блокируем строку до конца транзакции
func (t *postgresTx) Get(ctx context.Context, id identity.Identity, rec interf.Record) error {
	sql, args, err := sq.Select("kind", "payload").
		From("records").
		Where(sq.Eq{"id": id.String()}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		t.db.logSQL(err, sql, args)
		return err
	}
	var kind string
	var payload []byte
	err = t.tx.QueryRow(ctx, sql, args...).Scan(&kind, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
		}
		t.db.logSQL(err, sql, args)
		return err
	}
	return decode(kind, payload, rec)
}

func (t *postgresTx) Put(ctx context.Context, id identity.Identity, rec interf.Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	sql, args, err := sq.Update("records").
		Set("payload", payload).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id.String(), "kind": rec.Kind()}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		t.db.logSQL(err, sql, args)
		return err
	}
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		t.db.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", rec.Kind(), id, model.ErrNotFound)
	}
	return nil
}

func (t *postgresTx) OnCommit(fn func()) {
	t.hooks.add(fn)
}

func (t *postgresTx) OnRollback(fn func()) {
	t.rollback.add(fn)
}
