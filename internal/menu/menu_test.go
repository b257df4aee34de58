package menu

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/config"
)

var testProfile = config.Profile{
	Name:     "Ramesh Patil",
	Location: "Ratnagiri, Konkan",
	FPO:      "Konkan Vikas FPO",
	Lat:      16.99,
	Lon:      73.31,
	Crops:    []string{"Paddy", "Cashew"},
}

type recorder struct {
	calls atomic.Int32
	last  atomic.Value // advisory.RequestContext
}

func (r *recorder) provider(c advisory.Capability, payload advisory.Payload) advisory.Provider {
	return advisory.ProviderFunc{
		ProviderName: "menu-" + string(c),
		Cap:          c,
		Fn: func(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
			r.calls.Add(1)
			r.last.Store(rc)
			return payload, nil
		},
	}
}

func runMenu(t *testing.T, input string, providers ...advisory.Provider) string {
	t.Helper()

	agg := advisory.NewAggregator(advisory.NewRegistry(providers...), nil)
	var out bytes.Buffer
	m := New(agg, testProfile, strings.NewReader(input), &out)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestMenuWeatherReport(t *testing.T) {
	rec := &recorder{}
	out := runMenu(t, "1\n7\n", rec.provider(advisory.CapabilityWeather, advisory.Payload{
		"wind_speed":  "12 km/h",
		"temperature": "31°C",
	}))

	for _, want := range []string{
		"User: Ramesh Patil | Location: Ratnagiri, Konkan | FPO: Konkan Vikas FPO",
		"--- Weather Report ---",
		"Wind Speed: 12 km/h",
		"Temperature: 31°C",
		"Thank you for using AgriLocal.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMenuInvalidChoice(t *testing.T) {
	out := runMenu(t, "9\nabc\n7\n")
	if n := strings.Count(out, "Invalid choice. Please try again."); n != 2 {
		t.Fatalf("expected 2 invalid choice messages, got %d", n)
	}
}

func TestMenuPestDiagnosisRequiresImage(t *testing.T) {
	rec := &recorder{}
	p := rec.provider(advisory.CapabilityPestDiagnosis, advisory.Payload{"diagnosis": "Healthy"})

	out := runMenu(t, "2\n1\n\n7\n", p)
	if !strings.Contains(out, "Image path cannot be empty.") {
		t.Errorf("expected empty image message:\n%s", out)
	}
	if rec.calls.Load() != 0 {
		t.Fatal("provider must not be called without an image")
	}

	out = runMenu(t, "2\n2\n/sdcard/leaf.jpg\n7\n", p)
	if !strings.Contains(out, "Diagnosis: Healthy") {
		t.Errorf("expected diagnosis report:\n%s", out)
	}
	rc := rec.last.Load().(advisory.RequestContext)
	if rc.Crop != "Cashew" || rc.ImageRef != "/sdcard/leaf.jpg" {
		t.Errorf("unexpected request context %+v", rc)
	}
}

func TestMenuCropSelection(t *testing.T) {
	rec := &recorder{}
	p := rec.provider(advisory.CapabilityIrrigation, advisory.Payload{"schedule": "Every 3 days"})

	out := runMenu(t, "4\n5\n4\n1\nflowering\n7\n", p)
	if !strings.Contains(out, "Invalid crop selection.") {
		t.Errorf("expected invalid crop message:\n%s", out)
	}
	if rec.calls.Load() != 1 {
		t.Fatalf("expected 1 provider call, got %d", rec.calls.Load())
	}
	rc := rec.last.Load().(advisory.RequestContext)
	if rc.Crop != "Paddy" || rc.CropStage != "flowering" {
		t.Errorf("unexpected request context %+v", rc)
	}
}

func TestMenuUnavailableCapability(t *testing.T) {
	out := runMenu(t, "3\n1\n7\n")
	if !strings.Contains(out, "Service not available") {
		t.Errorf("expected unavailable message:\n%s", out)
	}
}

func TestMenuDroneBooking(t *testing.T) {
	tests := []struct {
		name, input, want string
	}{
		{"confirmed", "6\n2\n3.5\n7\n", "Booking confirmed for service 2 for 3.5 acres."},
		{"bad service", "6\n4\n7\n", "Invalid service selection."},
		{"bad area", "6\n1\nten\n7\n", "Invalid area."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := runMenu(t, tt.input); !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestMenuEndsOnEOF(t *testing.T) {
	out := runMenu(t, "")
	if strings.Contains(out, "Thank you") {
		t.Error("exit message should only follow an explicit exit")
	}
}
