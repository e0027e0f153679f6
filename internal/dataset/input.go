// Package dataset reads address sheets (CSV or XLSX) and writes the
// consolidated table and polygon artifacts (CSV, GeoJSON, Shapefile).
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

type column int

const (
	colUnit column = iota
	colMicroArea
	colAddress
	colUnitLocation
	colUnitLocationURL
)

// headerAliases maps folded header names to record columns.
var headerAliases = map[string]column{
	"ubs_referencia":    colUnit,
	"ubs":               colUnit,
	"unit":              colUnit,
	"unit_reference":    colUnit,
	"micro_area":        colMicroArea,
	"microarea":         colMicroArea,
	"endereco_completo": colAddress,
	"endereco":          colAddress,
	"address":           colAddress,
	"localizacao_ubs":   colUnitLocation,
	"unit_location":     colUnitLocation,
	"link_map_ubs":      colUnitLocationURL,
	"unit_location_url": colUnitLocationURL,
}

var requiredColumns = []column{colUnit, colMicroArea, colAddress}

var columnNames = map[column]string{
	colUnit:            "ubs_referencia",
	colMicroArea:       "micro_area",
	colAddress:         "endereco_completo",
	colUnitLocation:    "localizacao_ubs",
	colUnitLocationURL: "link_map_ubs",
}

// Read loads address records from path, choosing the reader by extension.
// sheet selects the worksheet for XLSX files and is ignored otherwise.
func Read(path string, sheet int) ([]model.AddressRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, sheet)
	case ".csv", ".txt", "":
		return ReadCSV(path)
	default:
		return nil, eris.Errorf("dataset: unsupported input format %q", filepath.Ext(path))
	}
}

// ReadCSV loads address records from a UTF-8 CSV file.
func ReadCSV(path string) ([]model.AddressRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close() //nolint:errcheck

	return ParseCSV(f)
}

// ParseCSV reads address records from r. A leading byte order mark is
// ignored.
func ParseCSV(r io.Reader) ([]model.AddressRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv")
	}
	return fromRows(rows)
}

// ReadXLSX loads address records from the sheet at index sheet.
func ReadXLSX(path string, sheet int) ([]model.AddressRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open xlsx")
	}
	if sheet < 0 || sheet >= len(f.Sheets) {
		return nil, eris.Errorf("dataset: sheet index %d out of range (file has %d sheets)", sheet, len(f.Sheets))
	}

	rows := make([][]string, 0, len(f.Sheets[sheet].Rows))
	for _, row := range f.Sheets[sheet].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]model.AddressRecord, error) {
	if len(rows) == 0 {
		return nil, eris.New("dataset: empty input")
	}

	index, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	var (
		out     []model.AddressRecord
		skipped int
	)
	for i, row := range rows[1:] {
		rec := model.AddressRecord{
			Unit:            cellAt(row, index, colUnit),
			MicroArea:       cellAt(row, index, colMicroArea),
			Address:         cellAt(row, index, colAddress),
			UnitLocation:    cellAt(row, index, colUnitLocation),
			UnitLocationURL: cellAt(row, index, colUnitLocationURL),
		}
		if rec.Address == "" {
			skipped++
			continue
		}
		if rec.Unit == "" || rec.MicroArea == "" {
			// Row numbers are 1-based and count the header.
			zap.L().Warn("dataset: skipped row without unit or micro-area",
				zap.Int("row", i+2),
				zap.String("address", rec.Address),
				zap.String("unit", rec.Unit),
				zap.String("micro_area", rec.MicroArea),
			)
			continue
		}
		out = append(out, rec)
	}

	if skipped > 0 {
		zap.L().Info("dataset: skipped rows without address", zap.Int("rows", skipped))
	}
	return out, nil
}

func mapHeader(header []string) (map[column]int, error) {
	index := make(map[column]int)
	for i, h := range header {
		c, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, columnNames[c])
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("dataset: missing columns %s", strings.Join(missing, ", "))
	}
	return index, nil
}

// normalizeHeader folds case and accents and joins words with underscores,
// so "Endereço Completo" and "endereco_completo" match.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.NewReplacer("-", " ", "_", " ").Replace(h)
	return strings.ReplaceAll(geo.Fold(h), " ", "_")
}

func cellAt(row []string, index map[column]int, c column) string {
	i, ok := index[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
