package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_layer_def":    `SELECT id, variable, label, definition, created_at, updated_at FROM layer_defs WHERE variable = $1`,
	"get_styled_layer": `SELECT doc FROM styled_layers WHERE state = $1 AND variable = $2 AND expires_at > now() ORDER BY styled_at DESC LIMIT 1`,
	"set_styled_layer": `INSERT INTO styled_layers (id, state, variable, doc, styled_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS layer_defs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	variable   TEXT NOT NULL UNIQUE,
	label      TEXT NOT NULL DEFAULT '',
	definition JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS styled_layers (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	state      TEXT NOT NULL,
	variable   TEXT NOT NULL,
	doc        JSONB NOT NULL,
	styled_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_styled_layers_key ON styled_layers(state, variable);
CREATE INDEX IF NOT EXISTS idx_styled_layers_expires_at ON styled_layers(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveLayerDef(ctx context.Context, def *LayerDef) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	def.UpdatedAt = now
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	encoded, err := encodeDef(def)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO layer_defs (id, variable, label, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (variable) DO UPDATE SET
			label = EXCLUDED.label,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at`,
		def.ID, def.Variable, def.Label, encoded, def.CreatedAt, def.UpdatedAt)
	return eris.Wrap(err, "postgres: save layer def")
}

func (s *PostgresStore) GetLayerDef(ctx context.Context, variable string) (*LayerDef, error) {
	var def LayerDef
	var encoded string
	err := s.pool.QueryRow(ctx,
		`SELECT id, variable, label, definition, created_at, updated_at FROM layer_defs WHERE variable = $1`,
		variable).
		Scan(&def.ID, &def.Variable, &def.Label, &encoded, &def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get layer def")
	}
	if err := applyDef(&def, encoded); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *PostgresStore) ListLayerDefs(ctx context.Context) ([]LayerDef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, variable, label, definition, created_at, updated_at FROM layer_defs ORDER BY variable`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list layer defs")
	}
	defer rows.Close()

	var defs []LayerDef
	for rows.Next() {
		var def LayerDef
		var encoded string
		if err := rows.Scan(&def.ID, &def.Variable, &def.Label, &encoded, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan layer def")
		}
		if err := applyDef(&def, encoded); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, eris.Wrap(rows.Err(), "postgres: iterate layer defs")
}

func (s *PostgresStore) GetStyledLayer(ctx context.Context, state, variable string) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM styled_layers WHERE state = $1 AND variable = $2 AND expires_at > now() ORDER BY styled_at DESC LIMIT 1`,
		state, variable).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get styled layer")
	}
	return doc, nil
}

func (s *PostgresStore) SetStyledLayer(ctx context.Context, state, variable string, doc []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO styled_layers (id, state, variable, doc, styled_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), state, variable, doc, now, now.Add(ttl))
	return eris.Wrap(err, "postgres: set styled layer")
}

func (s *PostgresStore) DeleteExpiredStyled(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM styled_layers WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired styled layers")
	}
	return int(tag.RowsAffected()), nil
}
