package catalog

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogFS embed.FS

// Market is an APMC price source quoted by the market provider.
type Market struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	MinPrice int    `yaml:"min_price"`
	MaxPrice int    `yaml:"max_price"`
}

// SoilProfile describes the regional soil used by the soil provider.
type SoilProfile struct {
	Type         string   `yaml:"type"`
	PHMin        float64  `yaml:"ph_min"`
	PHMax        float64  `yaml:"ph_max"`
	Deficiencies []string `yaml:"deficiencies"`
}

// WeatherCodeAlert maps an inclusive range of WMO weather codes to alert text.
type WeatherCodeAlert struct {
	Min   int    `yaml:"min"`
	Max   int    `yaml:"max"`
	Alert string `yaml:"alert"`
}

// Catalog is the external reference data the providers draw from.
type Catalog struct {
	Alerts       []string            `yaml:"alerts"`
	Diseases     map[string][]string `yaml:"diseases"`
	Soil         SoilProfile         `yaml:"soil"`
	Markets      []Market            `yaml:"markets"`
	WeatherCodes []WeatherCodeAlert  `yaml:"weather_codes"`
}

// Default returns the embedded catalogue.
func Default() (*Catalog, error) {
	data, err := defaultCatalogFS.ReadFile("default_catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalog: %w", err)
	}
	return Parse(data)
}

// Load reads the catalogue at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(c.Alerts) == 0 {
		return nil, fmt.Errorf("catalog has no alerts")
	}
	if len(c.Markets) == 0 {
		return nil, fmt.Errorf("catalog has no markets")
	}
	normalized := make(map[string][]string, len(c.Diseases))
	for crop, list := range c.Diseases {
		normalized[normalizeCrop(crop)] = list
	}
	c.Diseases = normalized
	return &c, nil
}

// DiseasesFor returns the diagnosis candidates for crop, falling back to
// the "default" list.
func (c *Catalog) DiseasesFor(crop string) []string {
	if list, ok := c.Diseases[normalizeCrop(crop)]; ok && len(list) > 0 {
		return list
	}
	if list, ok := c.Diseases["default"]; ok && len(list) > 0 {
		return list
	}
	return []string{"Healthy"}
}

// AlertForCode returns the alert for a WMO weather code and whether one matched.
func (c *Catalog) AlertForCode(code int) (string, bool) {
	for _, wc := range c.WeatherCodes {
		if code >= wc.Min && code <= wc.Max {
			return wc.Alert, true
		}
	}
	return "", false
}

// normalizeCrop drops any parenthesised local name, so "Paddy (भात)" matches "paddy".
func normalizeCrop(crop string) string {
	if i := strings.Index(crop, "("); i >= 0 {
		crop = crop[:i]
	}
	return strings.ToLower(strings.TrimSpace(crop))
}
