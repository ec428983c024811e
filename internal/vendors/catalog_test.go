package vendors_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/domain"
	"parley/internal/vendors"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := vendors.Load("")
	require.NoError(t, err)
	assert.True(t, c.Known("Zapier"))
	assert.True(t, c.Known("  zapier  "))
	assert.False(t, c.Known("FooCorp"))
}

func TestLoadRejectsInvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")

	require.NoError(t, os.WriteFile(path, []byte("vendors: []\n"), 0o644))
	_, err := vendors.Load(path)
	assert.Error(t, err)

	dupe := "vendors:\n  - name: Zapier\n  - name: zapier\n"
	require.NoError(t, os.WriteFile(path, []byte(dupe), 0o644))
	_, err = vendors.Load(path)
	assert.Error(t, err)
}

func TestNormalizeDropsUnknownVendors(t *testing.T) {
	c, err := vendors.Load("")
	require.NoError(t, err)

	got := c.Normalize([]domain.VendorFit{
		{Name: "zapier", FitTier: domain.FitHigh},
		{Name: "Totally Made Up Inc", FitTier: domain.FitHigh},
		{Name: "QuickBooks", FitTier: domain.FitMedium},
	})
	require.Len(t, got, 2)
	// canonical casing comes from the catalog, tiering from the caller
	assert.Equal(t, "Zapier", got[0].Name)
	assert.Equal(t, domain.FitHigh, got[0].FitTier)
	assert.Equal(t, "QuickBooks", got[1].Name)
}

func TestSuggestTiersByKeywordMatches(t *testing.T) {
	c, err := vendors.Load("")
	require.NoError(t, err)

	text := "We do manual copy work in a spreadsheet and want automation for invoicing."
	got := c.Suggest(text, 5)
	require.NotEmpty(t, got)

	byName := map[string]domain.VendorFit{}
	for _, v := range got {
		byName[v.Name] = v
	}
	// manual, copy, spreadsheet, automation all hit Zapier
	require.Contains(t, byName, "Zapier")
	assert.Equal(t, domain.FitHigh, byName["Zapier"].FitTier)
	require.Contains(t, byName, "QuickBooks")
	assert.Equal(t, domain.FitLow, byName["QuickBooks"].FitTier)
}

func TestSuggestHonorsLimit(t *testing.T) {
	c, err := vendors.Load("")
	require.NoError(t, err)

	text := "manual copy spreadsheet automation integration workflow api excel tracking invoice crm sales tickets"
	got := c.Suggest(text, 2)
	assert.Len(t, got, 2)
}
