package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "guajara", Fold("Guajará"))
	assert.Equal(t, "sao braz", Fold("  SÃO   Braz "))
	assert.Equal(t, "pajucara", Fold("Pajuçara"))
	assert.Equal(t, "", Fold("   "))
}

func TestCatalog_MatchNeighborhood(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Rua 12 de Fevereiro, Guajará, Nossa Senhora do Socorro - SE", "Guajará", true},
		{"Rua Caete, Sao Braz, Nossa Senhora do Socorro - SE", "São Braz", true},
		{"Travessa 19, são brás", "São Brás", true},
		{"Rua A, Conjunto Fernando Collor", "Conjunto Fernando Collor", true},
		{"Rua Sem Bairro, Aracaju - SE", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := c.MatchNeighborhood(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Name)
			}
		})
	}
}

func TestCatalog_GuajaraCentroid(t *testing.T) {
	n, ok := DefaultCatalog().MatchNeighborhood("GUAJARA")
	require.True(t, ok)
	assert.Equal(t, NewPoint(-10.89845, -37.15609), n.Point())
}

func TestCatalog_Centroids(t *testing.T) {
	c := DefaultCatalog()
	all := c.Centroids()
	assert.Len(t, all, len(c.Generic)+len(c.Neighborhoods))
	assert.Equal(t, c.Generic[0].Name, all[0].Name)
}

func TestParseCatalog(t *testing.T) {
	doc := `
neighborhoods:
  - name: Centro
    lat: -10.85
    lon: -37.12
  - name: Vila Nova
    lat: -10.86
    lon: -37.13
generic:
  - name: City center
    lat: -10.8531544
    lon: -37.1270097
`
	c, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)
	require.Len(t, c.Neighborhoods, 2)
	require.Len(t, c.Generic, 1)

	n, ok := c.MatchNeighborhood("Rua X, VILA NOVA")
	require.True(t, ok)
	assert.Equal(t, "Vila Nova", n.Name)
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("neighborhoods:\n  - name: ''\n    lat: 1\n    lon: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without name")

	_, err = ParseCatalog([]byte("generic:\n  - name: bad\n    lat: 100\n    lon: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid coordinate")

	_, err = ParseCatalog([]byte("neighborhoods: [unterminated"))
	require.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Neighborhoods)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("neighborhoods:\n  - name: Taboca\n    lat: -10.8722\n    lon: -37.1354\n"), 0o644))
	c, err = LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Neighborhoods, 1)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog")
}
