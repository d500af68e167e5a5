package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rounds (
		id         TEXT PRIMARY KEY,
		join_code  TEXT NOT NULL,
		owner_id   TEXT NOT NULL,
		finished   BOOLEAN NOT NULL DEFAULT FALSE,
		version    BIGINT NOT NULL,
		doc        JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rounds_open_join_code ON rounds (join_code) WHERE NOT finished`,
	`CREATE INDEX IF NOT EXISTS rounds_join_code_created ON rounds (join_code, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS cards (
		id    TEXT PRIMARY KEY,
		rank  TEXT NOT NULL,
		suit  TEXT NOT NULL,
		value INTEGER NOT NULL
	)`,
}

// PostgresStore persists each round aggregate as one JSONB document guarded by a version column.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool and verifies it.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established", zap.Int32("max_conns", poolCfg.MaxConns))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Migrate creates the tables if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	p.logger.Info("database schema applied", zap.Int("statements", len(schema)))
	return nil
}

// Close releases the pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// Ping checks the database.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Create inserts a new round at version 1.
func (p *PostgresStore) Create(ctx context.Context, r *round.Round) error {
	r.Version = 1
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode round: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO rounds (id, join_code, owner_id, finished, version, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.JoinCode, r.OwnerID, r.Finished, r.Version, doc, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "rounds_pkey" {
				return ErrDuplicateID
			}
			return round.ErrJoinCodeTaken
		}
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

// Get loads a round by id.
func (p *PostgresStore) Get(ctx context.Context, id string) (*round.Round, error) {
	row := p.pool.QueryRow(ctx, `SELECT doc, version FROM rounds WHERE id = $1`, id)
	return scanRound(row)
}

// GetByJoinCode loads the open round registered under code, or the most recent one.
func (p *PostgresStore) GetByJoinCode(ctx context.Context, code string) (*round.Round, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM rounds WHERE join_code = $1 ORDER BY finished, created_at DESC LIMIT 1`, code)
	return scanRound(row)
}

// Save writes the round if its version is unchanged.
func (p *PostgresStore) Save(ctx context.Context, r *round.Round) error {
	expected := r.Version
	next := r.Clone()
	next.Version = expected + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode round: %w", err)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE rounds SET doc = $2, version = $3, finished = $4, updated_at = $5, join_code = $7
		 WHERE id = $1 AND version = $6`,
		r.ID, doc, next.Version, r.Finished, r.UpdatedAt, expected, r.JoinCode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return round.ErrJoinCodeTaken
		}
		return fmt.Errorf("failed to update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rounds WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check round: %w", err)
		}
		if !exists {
			return round.ErrRoundNotFound
		}
		return round.ErrVersionConflict
	}

	r.Version = next.Version
	return nil
}

// SeedCards writes the catalog to the cards table in one transaction and returns the
// number of rows inserted.
func (p *PostgresStore) SeedCards(ctx context.Context, catalog *cards.Catalog) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, card := range catalog.All() {
		batch.Queue(
			`INSERT INTO cards (id, rank, suit, value) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET rank = EXCLUDED.rank, suit = EXCLUDED.suit, value = EXCLUDED.value`,
			string(card.ID), card.Rank, string(card.Suit), card.Value)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert card: %w", err)
		}
		inserted++
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit cards: %w", err)
	}
	return inserted, nil
}

// CountCards returns the number of rows in the cards table.
func (p *PostgresStore) CountCards(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

func scanRound(row pgx.Row) (*round.Round, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, round.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to load round: %w", err)
	}

	var r round.Round
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("failed to decode round: %w", err)
	}
	r.Version = version
	if r.Hands == nil {
		r.Hands = make(map[string]*round.Hand)
	}
	return &r, nil
}
