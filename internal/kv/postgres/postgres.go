// Package postgres implements kv.Store on Postgres through bun. All logical
// tables share one jsonb-backed relation; conditional writes become single
// INSERT ... ON CONFLICT / conditioned UPDATE statements so they stay atomic.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"devicegate/config"
	"devicegate/internal/kv"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
	backoffFactor  = 2
)

type kvRow struct {
	bun.BaseModel `bun:"table:kv_items,alias:k"`

	Table     string          `bun:"tbl,pk"`
	Partition string          `bun:"pk,pk"`
	Sort      string          `bun:"sk,pk"`
	Doc       json.RawMessage `bun:"doc,type:jsonb,notnull"`
}

type Store struct {
	db *bun.DB
}

// Connect opens the database with retries and ensures the kv_items relation
// exists.
func Connect(ctx context.Context, cfg *config.Config) (*Store, error) {
	var db *bun.DB
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, lastErr = attemptConnect(ctx, cfg)
		if lastErr == nil {
			if attempt > 1 {
				log.Printf("Successfully connected to database on attempt %d", attempt)
			}
			store := &Store{db: db}
			if err := store.ensureSchema(ctx); err != nil {
				db.Close()
				return nil, err
			}
			return store, nil
		}

		log.Printf("Database connection attempt %d/%d failed: %v", attempt, maxRetries, lastErr)

		if attempt < maxRetries {
			log.Printf("Retrying in %v...", backoff)
			time.Sleep(backoff)

			backoff *= backoffFactor
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}

func attemptConnect(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DatabaseURL),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(30*time.Second),
		pgdriver.WithWriteTimeout(30*time.Second),
	)
	sqldb := sql.OpenDB(connector)

	sqldb.SetMaxOpenConns(3)
	sqldb.SetMaxIdleConns(3)
	sqldb.SetConnMaxLifetime(2 * time.Minute)
	sqldb.SetConnMaxIdleTime(1 * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// New wraps an existing bun.DB (used by tests).
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*kvRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create kv_items table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func decodeDoc(doc json.RawMessage) (kv.Item, error) {
	var out map[string]any
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, fmt.Errorf("postgres decode doc: %w", err)
	}
	return kv.Item(out), nil
}

func (s *Store) Get(ctx context.Context, table string, key kv.Key) (kv.Item, error) {
	row := new(kvRow)
	err := s.db.NewSelect().
		Model(row).
		Where("tbl = ?", table).
		Where("pk = ?", key.Partition).
		Where("sk = ?", key.Sort).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get on %s: %w", table, err)
	}
	return decodeDoc(row.Doc)
}

func (s *Store) Put(ctx context.Context, table string, key kv.Key, item kv.Item, mustNotExist bool) error {
	doc, err := json.Marshal(map[string]any(item))
	if err != nil {
		return fmt.Errorf("postgres encode doc for %s: %w", table, err)
	}
	row := &kvRow{Table: table, Partition: key.Partition, Sort: key.Sort, Doc: doc}

	q := s.db.NewInsert().Model(row)
	if mustNotExist {
		q = q.On("CONFLICT (tbl, pk, sk) DO NOTHING")
	} else {
		q = q.On("CONFLICT (tbl, pk, sk) DO UPDATE").Set("doc = EXCLUDED.doc")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("postgres put on %s: %w", table, err)
	}
	if mustNotExist {
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres put on %s: %w", table, err)
		}
		if affected == 0 {
			return kv.ErrConditionFailed
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, key kv.Key, set kv.Item, cond *kv.UpdateCond) error {
	patch, err := json.Marshal(map[string]any(set))
	if err != nil {
		return fmt.Errorf("postgres encode patch for %s: %w", table, err)
	}

	q := s.db.NewUpdate().
		Model((*kvRow)(nil)).
		Set("doc = doc || ?::jsonb", string(patch)).
		Where("tbl = ?", table).
		Where("pk = ?", key.Partition).
		Where("sk = ?", key.Sort)
	if cond != nil {
		for attr, want := range cond.FieldEquals {
			q = q.Where("doc->>? = ?", attr, fmt.Sprintf("%v", want))
		}
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("postgres update on %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres update on %s: %w", table, err)
	}
	if affected == 0 {
		if cond != nil {
			return kv.ErrConditionFailed
		}
		// Unconditional update of an absent item creates it.
		return s.Put(ctx, table, key, set, false)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, key kv.Key) (kv.Item, error) {
	var doc json.RawMessage
	err := s.db.NewDelete().
		Model((*kvRow)(nil)).
		Where("tbl = ?", table).
		Where("pk = ?", key.Partition).
		Where("sk = ?", key.Sort).
		Returning("doc").
		Scan(ctx, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres delete on %s: %w", table, err)
	}
	return decodeDoc(doc)
}

func (s *Store) Scan(ctx context.Context, table string) ([]kv.Item, error) {
	var rows []kvRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("tbl = ?", table).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres scan on %s: %w", table, err)
	}

	items := make([]kv.Item, 0, len(rows))
	for _, row := range rows {
		it, err := decodeDoc(row.Doc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) Query(ctx context.Context, table string, partition string) ([]kv.Item, error) {
	var rows []kvRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("tbl = ?", table).
		Where("pk = ?", partition).
		Order("sk ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres query on %s: %w", table, err)
	}

	items := make([]kv.Item, 0, len(rows))
	for _, row := range rows {
		it, err := decodeDoc(row.Doc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
