package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/food-access/svimap/internal/style"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS layer_defs (
	id         TEXT PRIMARY KEY,
	variable   TEXT NOT NULL UNIQUE,
	label      TEXT NOT NULL DEFAULT '',
	definition TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS styled_layers (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	variable   TEXT NOT NULL,
	doc        TEXT NOT NULL,
	styled_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_styled_layers_key ON styled_layers(state, variable);
CREATE INDEX IF NOT EXISTS idx_styled_layers_expires_at ON styled_layers(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// layerDefJSON is the persisted shape of the breakpoints and palette.
type layerDefJSON struct {
	Classes    []float64 `json:"classes"`
	Colorscale []string  `json:"colorscale"`
	NoData     string    `json:"no_data_color"`
}

func encodeDef(def *LayerDef) (string, error) {
	colors := make([]string, len(def.Colorscale))
	for i, c := range def.Colorscale {
		colors[i] = string(c)
	}
	data, err := json.Marshal(layerDefJSON{
		Classes:    def.Classes,
		Colorscale: colors,
		NoData:     string(def.NoData),
	})
	if err != nil {
		return "", eris.Wrap(err, "store: marshal layer definition")
	}
	return string(data), nil
}

func applyDef(def *LayerDef, raw string) error {
	var parsed layerDefJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return eris.Wrap(err, "store: unmarshal layer definition")
	}
	def.Classes = parsed.Classes
	def.Colorscale = make([]style.Color, len(parsed.Colorscale))
	for i, c := range parsed.Colorscale {
		def.Colorscale[i] = style.Color(c)
	}
	def.NoData = style.Color(parsed.NoData)
	return nil
}

func (s *SQLiteStore) SaveLayerDef(ctx context.Context, def *LayerDef) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO layer_defs (id, variable, label, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(variable) DO UPDATE SET
			label = excluded.label,
			definition = excluded.definition,
			updated_at = excluded.updated_at`,
		def.ID, def.Variable, def.Label, encoded, def.CreatedAt, def.UpdatedAt)
	return eris.Wrap(err, "sqlite: save layer def")
}

func (s *SQLiteStore) GetLayerDef(ctx context.Context, variable string) (*LayerDef, error) {
	var def LayerDef
	var encoded string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, variable, label, definition, created_at, updated_at
		FROM layer_defs WHERE variable = ?`, variable).
		Scan(&def.ID, &def.Variable, &def.Label, &encoded, &def.CreatedAt, &def.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get layer def")
	}
	if err := applyDef(&def, encoded); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *SQLiteStore) ListLayerDefs(ctx context.Context) ([]LayerDef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, variable, label, definition, created_at, updated_at
		FROM layer_defs ORDER BY variable`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list layer defs")
	}
	defer rows.Close() //nolint:errcheck

	var defs []LayerDef
	for rows.Next() {
		var def LayerDef
		var encoded string
		if err := rows.Scan(&def.ID, &def.Variable, &def.Label, &encoded, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan layer def")
		}
		if err := applyDef(&def, encoded); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, eris.Wrap(rows.Err(), "sqlite: iterate layer defs")
}

func (s *SQLiteStore) GetStyledLayer(ctx context.Context, state, variable string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM styled_layers
		WHERE state = ? AND variable = ? AND expires_at > ?
		ORDER BY styled_at DESC LIMIT 1`,
		state, variable, time.Now().UTC()).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get styled layer")
	}
	return doc, nil
}

func (s *SQLiteStore) SetStyledLayer(ctx context.Context, state, variable string, doc []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO styled_layers (id, state, variable, doc, styled_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), state, variable, doc, now, now.Add(ttl))
	return eris.Wrap(err, "sqlite: set styled layer")
}

func (s *SQLiteStore) DeleteExpiredStyled(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM styled_layers WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired styled layers")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}
