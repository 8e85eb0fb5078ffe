// Package store persists layer definitions and styled-layer documents in
// SQLite or PostgreSQL.
package store

import (
	"context"
	"time"

	"github.com/food-access/svimap/internal/style"
)

// LayerDef is a persisted classification configuration for one variable.
type LayerDef struct {
	ID         string        `json:"id"`
	Variable   string        `json:"variable"`
	Label      string        `json:"label"`
	Classes    []float64     `json:"classes"`
	Colorscale []style.Color `json:"colorscale"`
	NoData     style.Color   `json:"no_data_color"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Classifier builds a classifier from the stored definition.
func (d *LayerDef) Classifier(base style.Style) (*style.Classifier, error) {
	return style.NewClassifier(d.Classes, d.Colorscale, base, d.Variable, d.NoData)
}

// Store defines the persistence interface for the styling service.
type Store interface {
	// Layer definitions
	SaveLayerDef(ctx context.Context, def *LayerDef) error
	GetLayerDef(ctx context.Context, variable string) (*LayerDef, error)
	ListLayerDefs(ctx context.Context) ([]LayerDef, error)

	// Styled-layer cache
	GetStyledLayer(ctx context.Context, state, variable string) ([]byte, error)
	SetStyledLayer(ctx context.Context, state, variable string, doc []byte, ttl time.Duration) error
	DeleteExpiredStyled(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
