package geo

import (
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Centroid catalog entries are coarse: a neighborhood or city center, not a
// street. The fallback layer substitutes them, and the auditor flags any
// stored coordinate that sits on one of them.

// NamedPoint is a catalog entry.
type NamedPoint struct {
	Name   string  `yaml:"name"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
	folded string
}

// Point returns the entry's coordinate.
func (n NamedPoint) Point() Point { return Point{Lat: n.Lat, Lon: n.Lon} }

// Catalog holds the neighborhood fallbacks and the known generic centroids.
type Catalog struct {
	Neighborhoods []NamedPoint `yaml:"neighborhoods"`
	Generic       []NamedPoint `yaml:"generic"`
}

// DefaultCatalog returns the built-in catalog for Nossa Senhora do Socorro.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Neighborhoods: []NamedPoint{
			{Name: "Guajará", Lat: -10.89845, Lon: -37.15609},
			{Name: "São Braz", Lat: -10.84992, Lon: -37.05153},
			{Name: "São Brás", Lat: -10.84992, Lon: -37.05153},
			{Name: "Taboca", Lat: -10.8722, Lon: -37.1354},
			{Name: "Jardim Mariana", Lat: -10.8459, Lon: -37.0522},
			{Name: "Marcos Freire", Lat: -10.8765, Lon: -37.0894},
			{Name: "Piabeta", Lat: -10.8531, Lon: -37.1270},
			{Name: "Parque São José", Lat: -10.8631, Lon: -37.1170},
			{Name: "Conjunto Fernando Collor", Lat: -10.8780, Lon: -37.0950},
			{Name: "Conjunto Albano Franco", Lat: -10.8650, Lon: -37.1050},
			{Name: "Pajuçara", Lat: -10.8590, Lon: -37.1180},
			{Name: "Taiçoca", Lat: -10.8500, Lon: -37.1100},
			{Name: "Parque dos Faróis", Lat: -10.8550, Lon: -37.1050},
			{Name: "Maria do Carmo", Lat: -10.8600, Lon: -37.1000},
			{Name: "Fernando Collor", Lat: -10.8780, Lon: -37.0950},
			{Name: "Albano Franco", Lat: -10.8650, Lon: -37.1050},
		},
		Generic: []NamedPoint{
			{Name: "Centróide N.Sra.Socorro", Lat: -10.8531544, Lon: -37.1270097},
			{Name: "Centróide N.Sra.Socorro (var)", Lat: -10.8531643, Lon: -37.1269791},
			{Name: "Centróide Guajará", Lat: -10.89845, Lon: -37.15609},
			{Name: "Centróide Guajará (var)", Lat: -10.8989307, Lon: -37.1556814},
			{Name: "Centróide São Braz", Lat: -10.84992, Lon: -37.05153},
		},
	}
	c.prepare()
	return c
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "geo: parse catalog")
	}
	for _, n := range append(append([]NamedPoint{}, c.Neighborhoods...), c.Generic...) {
		if strings.TrimSpace(n.Name) == "" {
			return nil, eris.New("geo: catalog entry without name")
		}
		if !n.Point().Valid() {
			return nil, eris.Errorf("geo: catalog entry %q has invalid coordinate", n.Name)
		}
	}
	c.prepare()
	return &c, nil
}

// prepare folds names once and orders neighborhoods longest first, so
// "Conjunto Fernando Collor" wins over "Fernando Collor".
func (c *Catalog) prepare() {
	for i := range c.Neighborhoods {
		c.Neighborhoods[i].folded = Fold(c.Neighborhoods[i].Name)
	}
	sort.SliceStable(c.Neighborhoods, func(i, j int) bool {
		return len(c.Neighborhoods[i].folded) > len(c.Neighborhoods[j].folded)
	})
}

// MatchNeighborhood returns the first neighborhood whose name occurs in text,
// ignoring case and diacritics.
func (c *Catalog) MatchNeighborhood(text string) (NamedPoint, bool) {
	folded := Fold(text)
	if folded == "" {
		return NamedPoint{}, false
	}
	for _, n := range c.Neighborhoods {
		if n.folded != "" && strings.Contains(folded, n.folded) {
			return n, true
		}
	}
	return NamedPoint{}, false
}

// Centroids returns every known coarse centroid: generic entries first,
// then neighborhood fallbacks.
func (c *Catalog) Centroids() []NamedPoint {
	out := make([]NamedPoint, 0, len(c.Generic)+len(c.Neighborhoods))
	out = append(out, c.Generic...)
	return append(out, c.Neighborhoods...)
}

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
