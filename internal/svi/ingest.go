package svi

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/geodata"
)

// geoidColumn is the tract identifier column in CDC SVI exports.
const geoidColumn = "FIPS"

// Table holds SVI attribute rows keyed by tract GEOID.
type Table struct {
	Columns []string
	Rows    map[string]map[string]float64
}

// ReadTable parses an SVI attribute table. The format is chosen by file
// extension: .csv or .xlsx.
func ReadTable(ctx context.Context, path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(ctx, path)
	case ".xlsx":
		return readXLSX(ctx, path)
	default:
		return nil, eris.Errorf("svi: unsupported table format %q", filepath.Ext(path))
	}
}

// Merge copies the table's SVI columns into the matching features of a tract
// layer, keyed by the GEOID property. The -999 sentinel becomes null.
// Returns the number of features that matched a row.
func Merge(fc *geodata.FeatureCollection, table *Table) int {
	var matched int
	for _, f := range fc.Features {
		geoid, ok := f.Properties["GEOID"].(string)
		if !ok {
			continue
		}
		row, ok := table.Rows[geoid]
		if !ok {
			continue
		}
		for col, v := range row {
			if v == geodata.InvalidValue {
				f.Properties[col] = nil
			} else {
				f.Properties[col] = v
			}
		}
		matched++
	}

	zap.L().Info("svi: table merged",
		zap.Int("rows", len(table.Rows)),
		zap.Int("matched", matched),
		zap.Int("features", len(fc.Features)),
	)
	return matched
}

func buildTable(header []string, next func() ([]string, error)) (*Table, error) {
	geoidIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), geoidColumn) {
			geoidIdx = i
			break
		}
	}
	if geoidIdx < 0 {
		return nil, eris.Errorf("svi: table has no %s column", geoidColumn)
	}

	table := &Table{Rows: make(map[string]map[string]float64)}
	for i, col := range header {
		if i != geoidIdx {
			table.Columns = append(table.Columns, strings.TrimSpace(col))
		}
	}

	for {
		record, err := next()
		if err == io.EOF {
			return table, nil
		}
		if err != nil {
			return nil, err
		}
		if geoidIdx >= len(record) {
			continue
		}

		geoid := strings.TrimSpace(record[geoidIdx])
		if geoid == "" {
			continue
		}

		row := make(map[string]float64)
		for i, cell := range record {
			if i == geoidIdx || i >= len(header) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				continue
			}
			row[strings.TrimSpace(header[i])] = v
		}
		table.Rows[geoid] = row
	}
}

func readCSV(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "svi: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "svi: read CSV header %s", path)
	}

	return buildTable(header, func() ([]string, error) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "svi: read cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, eris.Wrapf(err, "svi: read CSV row %s", path)
		}
		return record, nil
	})
}

func readXLSX(ctx context.Context, path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "svi: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("svi: xlsx %s has no sheets", path)
	}

	rows := f.Sheets[0].Rows
	if len(rows) == 0 {
		return nil, eris.Errorf("svi: xlsx %s sheet is empty", path)
	}

	header := cellStrings(rows[0])
	i := 1
	return buildTable(header, func() ([]string, error) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "svi: read cancelled")
		}
		if i >= len(rows) {
			return nil, io.EOF
		}
		record := cellStrings(rows[i])
		i++
		return record, nil
	})
}

func cellStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}
