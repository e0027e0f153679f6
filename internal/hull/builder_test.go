package hull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

func located(unit, micro, addr string, lon, lat float64) model.ConsolidatedRecord {
	p := geo.NewPoint(lat, lon)
	return model.ConsolidatedRecord{
		AddressRecord: model.AddressRecord{Unit: unit, MicroArea: micro, Address: addr},
		Result:        model.ResolutionResult{Point: &p, Method: model.MethodPrimary, Confidence: model.ConfidenceHigh},
	}
}

func TestBuilder_Build(t *testing.T) {
	recs := []model.ConsolidatedRecord{
		located("UBS A", "10", "Rua 1", -37.130, -10.850),
		located("UBS A", "10", "Rua 2", -37.120, -10.850),
		located("UBS A", "10", "Rua 3", -37.125, -10.840),
		located("UBS A", "10", "Rua 4", -37.125, -10.840), // same point as Rua 3
		located("UBS A", "2", "Rua 5", -37.122, -10.855),
		located("UBS A", "2", "Rua 6", -37.121, -10.856),
		located("UBS A", "1", "Rua 7", -37.123, -10.857),
		{AddressRecord: model.AddressRecord{Unit: "UBS A", MicroArea: "3", Address: "Rua 8"}, Result: model.ResolutionResult{Method: model.MethodManual}},
		located("UBS B", "1", "Rua 9", -37.05, -10.84),
	}

	res := NewBuilder(Config{}).Build(recs)

	require.Len(t, res.MicroAreas, 4)
	got := make([]string, 0, len(res.MicroAreas))
	for _, p := range res.MicroAreas {
		got = append(got, p.Unit+"/"+p.MicroArea)
	}
	assert.Equal(t, []string{"UBS A/1", "UBS A/2", "UBS A/10", "UBS B/1"}, got)

	one, two, ten := res.MicroAreas[0], res.MicroAreas[1], res.MicroAreas[2]
	assert.Equal(t, ShapePointBuffer, one.Shape)
	assert.Len(t, one.Ring, 5)
	assert.Equal(t, ShapeSegmentBuffer, two.Shape)
	assert.Len(t, two.Ring, 5)
	assert.Equal(t, ShapeHull, ten.Shape)
	assert.Len(t, ten.Ring, 4)
	assert.Equal(t, 4, ten.RawCount)
	assert.Equal(t, 3, ten.UniqueCount)

	require.Len(t, res.Units, 2)
	a := res.Units[0]
	assert.Equal(t, "UBS A", a.Unit)
	assert.True(t, a.IsAggregate())
	assert.Equal(t, 7, a.RawCount)
	assert.Equal(t, 3, a.MicroAreas)
	assert.Equal(t, ShapeHull, a.Shape)
	for _, r := range recs[:7] {
		assert.True(t, Contains(a.Ring, *r.Result.Point))
	}
	assert.Equal(t, ShapePointBuffer, res.Units[1].Shape)
}

func TestBuilder_CollinearGroup(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	p, ok := b.Polygon("U", "1", []geo.Point{pt(-37.10, -10.85), pt(-37.11, -10.85), pt(-37.12, -10.85)})
	require.True(t, ok)
	assert.Equal(t, ShapeSegmentBuffer, p.Shape)
	assert.True(t, Contains(p.Ring, pt(-37.11, -10.85)))
}

func TestBuilder_EmptyGroup(t *testing.T) {
	_, ok := NewBuilder(DefaultConfig()).Polygon("U", "1", nil)
	assert.False(t, ok)
}

func TestBuilder_OutlierDropped(t *testing.T) {
	pts := []geo.Point{pt(-37.100, -10.850), pt(-37.101, -10.851), pt(-37.099, -10.849), pt(-37.100, -10.760)}
	p, ok := NewBuilder(DefaultConfig()).Polygon("U", "1", pts)
	require.True(t, ok)
	assert.Equal(t, 4, p.RawCount)
	assert.Equal(t, 3, p.UniqueCount)
	assert.Equal(t, 1, p.OutliersDropped)
	assert.False(t, Contains(p.Ring, pts[3]))
}

func TestLessMicroArea(t *testing.T) {
	assert.True(t, LessMicroArea("2", "10"))
	assert.False(t, LessMicroArea("10", "2"))
	assert.True(t, LessMicroArea("9", "A"))
	assert.True(t, LessMicroArea("A", "B"))
	assert.True(t, LessMicroArea(" 3", "4"))
}

func TestPolygon_Geom(t *testing.T) {
	p := Polygon{Unit: "U", MicroArea: "1", Ring: PointBuffer(pt(-37.1, -10.9), 0.002)}
	g, err := p.Geom()
	require.NoError(t, err)
	coords := g.Coords()
	require.Len(t, coords, 1)
	require.Len(t, coords[0], 5)
	assert.InDelta(t, -37.102, coords[0][0].X(), 1e-12)
	assert.InDelta(t, -10.902, coords[0][0].Y(), 1e-12)
}

func TestPolygon_AreaAndExtent(t *testing.T) {
	ref := -10.85
	// 0.01° square: about 1.11 km by 1.09 km.
	p := Polygon{Ring: PointBuffer(pt(-37.1, -10.85), 0.005)}
	w, h := p.ExtentKM(ref)
	assert.InDelta(t, geo.KMPerLonDegree(ref)*0.01, w, 1e-9)
	assert.InDelta(t, 1.11, h, 1e-9)
	assert.InDelta(t, w*h, p.AreaKM2(ref), 1e-9)

	assert.Zero(t, Polygon{}.AreaKM2(ref))
}
