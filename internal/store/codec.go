package store

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

// resolutionColumns is the column order shared by both SQL backends.
var resolutionColumns = []string{
	"unit", "micro_area", "address", "unit_location", "unit_location_url",
	"latitude", "longitude", "method", "confidence", "note", "match_precision",
	"formatted_address", "attempts", "run_id", "updated_at",
}

var attemptColumns = []string{
	"run_id", "unit", "micro_area", "address", "layer", "outcome",
	"latitude", "longitude", "detail", "created_at",
}

// resolutionArgs flattens a consolidated record into resolutionColumns order.
func resolutionArgs(rec model.AddressRecord, r model.ResolutionResult, runID string, now time.Time) ([]any, error) {
	attempts, err := json.Marshal(r.Attempts)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal attempts")
	}
	lat, lon := pointArgs(r.Point)
	k := rec.Key()
	return []any{
		k.Unit, k.MicroArea, k.Address, rec.UnitLocation, rec.UnitLocationURL,
		lat, lon, string(r.Method), int(r.Confidence), r.Note, r.Precision,
		r.FormattedAddress, string(attempts), runID, now,
	}, nil
}

// attemptRows renders one row per attempt in attemptColumns order.
func attemptRows(k model.Key, attempts []model.Attempt, runID string, now time.Time) [][]any {
	rows := make([][]any, 0, len(attempts))
	for _, a := range attempts {
		lat, lon := pointArgs(a.Point)
		rows = append(rows, []any{
			runID, k.Unit, k.MicroArea, k.Address, string(a.Layer), string(a.Outcome),
			lat, lon, a.Detail, now,
		})
	}
	return rows
}

func pointArgs(p *geo.Point) (lat, lon *float64) {
	if p == nil {
		return nil, nil
	}
	la, lo := p.Lat, p.Lon
	return &la, &lo
}

func pointFromColumns(lat, lon *float64) *geo.Point {
	if lat == nil || lon == nil {
		return nil
	}
	p := geo.NewPoint(*lat, *lon)
	return &p
}

func decodeAttempts(raw []byte) ([]model.Attempt, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []model.Attempt
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal attempts")
	}
	return out, nil
}

// scannable matches *sql.Row, *sql.Rows and pgx.Row.
type scannable interface {
	Scan(dest ...any) error
}

// resultColumns are the columns read back when merging.
const resultColumns = `latitude, longitude, method, confidence, note, match_precision, formatted_address, attempts`

func scanResult(row scannable) (*model.ResolutionResult, error) {
	var (
		r          model.ResolutionResult
		lat, lon   *float64
		method     string
		confidence int
		attempts   []byte
	)
	if err := row.Scan(&lat, &lon, &method, &confidence, &r.Note, &r.Precision, &r.FormattedAddress, &attempts); err != nil {
		return nil, err
	}
	r.Point = pointFromColumns(lat, lon)
	r.Method = model.Method(method)
	r.Confidence = model.Confidence(confidence)
	a, err := decodeAttempts(attempts)
	if err != nil {
		return nil, err
	}
	r.Attempts = a
	return &r, nil
}

// recordColumns are the columns read by Get and List.
const recordColumns = `unit, micro_area, address, unit_location, unit_location_url, ` + resultColumns + `, run_id, updated_at`

func scanRecord(row scannable) (*model.ConsolidatedRecord, error) {
	var (
		c          model.ConsolidatedRecord
		lat, lon   *float64
		method     string
		confidence int
		attempts   []byte
	)
	err := row.Scan(
		&c.Unit, &c.MicroArea, &c.Address, &c.UnitLocation, &c.UnitLocationURL,
		&lat, &lon, &method, &confidence, &c.Result.Note, &c.Result.Precision,
		&c.Result.FormattedAddress, &attempts, &c.RunID, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Result.Point = pointFromColumns(lat, lon)
	c.Result.Method = model.Method(method)
	c.Result.Confidence = model.Confidence(confidence)
	a, err := decodeAttempts(attempts)
	if err != nil {
		return nil, err
	}
	c.Result.Attempts = a
	return &c, nil
}
