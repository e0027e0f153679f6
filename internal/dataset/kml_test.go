package dataset

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

type kmlPlacemark struct {
	Name    string    `xml:"name"`
	Polygon *struct{} `xml:"Polygon"`
	Point   *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlDocument struct {
	Document struct {
		Name    string      `xml:"name"`
		Folders []kmlFolder `xml:"Folder"`
	} `xml:"Document"`
}

func located(unit, micro, addr string, lat, lon float64) model.ConsolidatedRecord {
	p := geo.NewPoint(lat, lon)
	return model.ConsolidatedRecord{
		AddressRecord: model.AddressRecord{Unit: unit, MicroArea: micro, Address: addr},
		Result:        model.ResolutionResult{Point: &p, Method: model.MethodPrimary, Confidence: model.ConfidenceHigh},
	}
}

func kmlRecords() []model.ConsolidatedRecord {
	return []model.ConsolidatedRecord{
		located("UBS Taboca", "1", "Rua do Sol", -10.86, -37.12),
		located("UBS Guajará", "10", "Rua Dez", -10.88, -37.13),
		located("UBS Guajará", "3", "Rua A, 1", -10.900, -37.150),
		located("UBS Guajará", "3", "Rua A, 2", -10.900, -37.140),
		located("UBS Guajará", "3", "Rua B, 3", -10.890, -37.145),
		{
			AddressRecord: model.AddressRecord{Unit: "UBS Guajará", MicroArea: "4", Address: "Rua Perdida"},
			Result:        model.ResolutionResult{Method: model.MethodManual, Note: "not_found"},
		},
	}
}

func TestWriteKML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, kmlRecords(), testPolygons()))

	var doc kmlDocument
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "Micro-areas", doc.Document.Name)
	require.Len(t, doc.Document.Folders, 2)

	guajara := doc.Document.Folders[0]
	assert.Equal(t, "UBS Guajará", guajara.Name)
	require.Len(t, guajara.Folders, 2, "micro-areas without located addresses get no folder")
	assert.Equal(t, "Microárea 3", guajara.Folders[0].Name)
	assert.Equal(t, "Microárea 10", guajara.Folders[1].Name)

	ma3 := guajara.Folders[0].Placemarks
	require.Len(t, ma3, 4)
	assert.NotNil(t, ma3[0].Polygon)
	for _, pm := range ma3[1:] {
		require.NotNil(t, pm.Point)
		assert.Contains(t, pm.Point.Coordinates, "-37.1")
	}
	assert.Equal(t, "Rua A, 1", ma3[1].Name)

	require.Len(t, guajara.Folders[1].Placemarks, 1)
	assert.Nil(t, guajara.Folders[1].Placemarks[0].Polygon)

	assert.Equal(t, "UBS Taboca", doc.Document.Folders[1].Name)
	assert.NotContains(t, buf.String(), "Rua Perdida")
}

func TestWriteKMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "microareas.kml")
	require.NoError(t, WriteKMLFile(path, kmlRecords(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<kml")
	assert.Contains(t, string(data), "Rua do Sol")
}

func TestUnitHue(t *testing.T) {
	h := UnitHue("UBS Guajará")
	assert.Equal(t, h, UnitHue("UBS Guajará"))
	assert.GreaterOrEqual(t, h, 0.0)
	assert.Less(t, h, 360.0)
}

func TestMicroAreaColor(t *testing.T) {
	a := MicroAreaColor(120, 0)
	b := MicroAreaColor(120, 1)
	assert.NotEqual(t, a, b)
	assert.Equal(t, uint8(0xff), a.A)
	assert.Equal(t, a, MicroAreaColor(120, 30), "shades repeat every 30 micro-areas")
}

func TestHLSToRGB(t *testing.T) {
	r, g, b := hlsToRGB(0, 0.5, 1)
	assert.InDelta(t, 1.0, r, 1e-9)
	assert.InDelta(t, 0.0, g, 1e-9)
	assert.InDelta(t, 0.0, b, 1e-9)

	r, g, b = hlsToRGB(0.5, 0.4, 0)
	assert.Equal(t, [3]float64{0.4, 0.4, 0.4}, [3]float64{r, g, b})
}
