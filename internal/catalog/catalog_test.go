package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("loading default catalog: %v", err)
	}
	if len(c.Alerts) == 0 {
		t.Fatal("expected alerts in default catalog")
	}
	if len(c.Markets) != 2 {
		t.Errorf("expected 2 markets, got %d", len(c.Markets))
	}
	if c.Soil.PHMin >= c.Soil.PHMax {
		t.Errorf("invalid pH range %v-%v", c.Soil.PHMin, c.Soil.PHMax)
	}
}

func TestDiseasesFor(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("loading default catalog: %v", err)
	}

	paddy := c.DiseasesFor("Paddy (भात)")
	found := false
	for _, d := range paddy {
		if d == "Rice Blast" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Rice Blast for paddy, got %v", paddy)
	}

	unknown := c.DiseasesFor("Sugarcane")
	if len(unknown) == 0 || unknown[0] != "Healthy" {
		t.Errorf("expected default list for unknown crop, got %v", unknown)
	}
}

func TestAlertForCode(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("loading default catalog: %v", err)
	}
	if _, ok := c.AlertForCode(81); !ok {
		t.Error("expected alert for rain shower code 81")
	}
	if _, ok := c.AlertForCode(3); ok {
		t.Error("did not expect alert for code 3")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
alerts: ["Frost warning"]
markets:
  - {id: "kolhapur", name: "Kolhapur APMC", min_price: 1800, max_price: 1900}
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	if c.Alerts[0] != "Frost warning" {
		t.Errorf("unexpected alerts %v", c.Alerts)
	}
	if got := c.DiseasesFor("paddy"); len(got) != 1 || got[0] != "Healthy" {
		t.Errorf("expected fallback diagnosis list, got %v", got)
	}
}

func TestParseRejectsEmptyCatalog(t *testing.T) {
	if _, err := Parse([]byte("alerts: []\n")); err == nil {
		t.Fatal("expected error for catalog without alerts")
	}
}
