package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/food-access/svimap/internal/style"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgres_GetLayerDef_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, variable, label, definition, created_at, updated_at FROM layer_defs`).
		WithArgs("UNKNOWN").
		WillReturnError(pgx.ErrNoRows)

	def, err := s.GetLayerDef(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, def)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLayerDef_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	encoded := `{"classes":[0,10,20],"colorscale":["#fee","#f88"],"no_data_color":"#808080"}`
	mock.ExpectQuery(`SELECT id, variable, label, definition, created_at, updated_at FROM layer_defs`).
		WithArgs("POP_DENSITY").
		WillReturnRows(pgxmock.NewRows([]string{"id", "variable", "label", "definition", "created_at", "updated_at"}).
			AddRow("abc", "POP_DENSITY", "Population Density", encoded, now, now))

	def, err := s.GetLayerDef(context.Background(), "POP_DENSITY")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, []float64{0, 10, 20}, def.Classes)
	assert.Equal(t, []style.Color{"#fee", "#f88"}, def.Colorscale)
	assert.Equal(t, style.NoDataColor, def.NoData)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveLayerDef(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO layer_defs`).
		WithArgs(pgxmock.AnyArg(), "POP_DENSITY", "Population Density",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	def := testLayerDef()
	require.NoError(t, s.SaveLayerDef(context.Background(), def))
	assert.NotEmpty(t, def.ID)
	assert.False(t, def.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListLayerDefs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	encoded := `{"classes":[0,1],"colorscale":["#fee"],"no_data_color":"#808080"}`
	mock.ExpectQuery(`SELECT id, variable, label, definition, created_at, updated_at FROM layer_defs ORDER BY variable`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "variable", "label", "definition", "created_at", "updated_at"}).
			AddRow("a", "EPL_POV150", "", encoded, now, now).
			AddRow("b", "POP_DENSITY", "", encoded, now, now))

	defs, err := s.ListLayerDefs(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "EPL_POV150", defs[0].Variable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StyledLayer_Roundtrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO styled_layers`).
		WithArgs(pgxmock.AnyArg(), "co", "POP_DENSITY", []byte(`{}`),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT doc FROM styled_layers`).
		WithArgs("co", "POP_DENSITY").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow([]byte(`{}`)))

	ctx := context.Background()
	require.NoError(t, s.SetStyledLayer(ctx, "co", "POP_DENSITY", []byte(`{}`), time.Hour))

	doc, err := s.GetStyledLayer(ctx, "co", "POP_DENSITY")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetStyledLayer_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT doc FROM styled_layers`).
		WithArgs("tx", "POP_DENSITY").
		WillReturnError(pgx.ErrNoRows)

	doc, err := s.GetStyledLayer(context.Background(), "tx", "POP_DENSITY")
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteExpiredStyled(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM styled_layers`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredStyled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
