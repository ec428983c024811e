// Package vendors holds the read-only reference catalog used to normalize
// vendor suggestions on milestones. The catalog ships embedded and can be
// replaced by a workspace file; it is never written at runtime.
package vendors

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"parley/internal/domain"
)

//go:embed catalog.yml
var embeddedCatalog []byte

// Vendor is one catalog entry.
type Vendor struct {
	Name       string   `yaml:"name"`
	Categories []string `yaml:"categories"`
	Keywords   []string `yaml:"keywords"`
	Notes      string   `yaml:"notes,omitempty"`
}

// Catalog is the loaded reference data.
type Catalog struct {
	Vendors []Vendor `yaml:"vendors"`

	byName map[string]Vendor
}

// Load reads the catalog from path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	data := embeddedCatalog
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read vendor catalog: %w", err)
		}
		data = fileData
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid vendor catalog yaml: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.byName = make(map[string]Vendor, len(c.Vendors))
	for _, v := range c.Vendors {
		c.byName[strings.ToLower(v.Name)] = v
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Vendors) == 0 {
		return fmt.Errorf("vendor catalog is empty")
	}
	seen := map[string]bool{}
	for i, v := range c.Vendors {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("vendors[%d]: name is required", i)
		}
		key := strings.ToLower(v.Name)
		if seen[key] {
			return fmt.Errorf("vendors[%d]: duplicate name %s", i, v.Name)
		}
		seen[key] = true
	}
	return nil
}

// Known reports whether a vendor name exists in the catalog.
func (c *Catalog) Known(name string) bool {
	_, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Normalize filters a synthesized vendor list to catalog entries, keeping
// the synthesizer's tiering. Unknown names are dropped rather than shown:
// suggestions must always come from curated reference data.
func (c *Catalog) Normalize(suggested []domain.VendorFit) []domain.VendorFit {
	var out []domain.VendorFit
	for _, v := range suggested {
		entry, ok := c.byName[strings.ToLower(strings.TrimSpace(v.Name))]
		if !ok {
			continue
		}
		v.Name = entry.Name
		out = append(out, v)
	}
	return out
}

// Suggest returns catalog vendors whose keywords appear in the text,
// tiered by match count. Used to backfill suggestions when the synthesizer
// returns none.
func (c *Catalog) Suggest(text string, limit int) []domain.VendorFit {
	if limit <= 0 {
		limit = 3
	}
	lowered := strings.ToLower(text)
	var out []domain.VendorFit
	for _, v := range c.Vendors {
		matches := 0
		for _, kw := range v.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		tier := domain.FitLow
		switch {
		case matches >= 3:
			tier = domain.FitHigh
		case matches == 2:
			tier = domain.FitMedium
		}
		out = append(out, domain.VendorFit{
			Name:    v.Name,
			FitTier: tier,
			Reason:  fmt.Sprintf("matched %d keyword(s) in the conversation", matches),
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}
