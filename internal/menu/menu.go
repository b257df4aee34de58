package menu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/config"
)

// Action is a numbered menu entry.
type Action int

const (
	ActionWeather Action = iota + 1
	ActionPestDiagnosis
	ActionSoilHealth
	ActionIrrigation
	ActionMarketPrice
	ActionDroneBooking
	ActionExit
)

var actionLabels = map[Action]string{
	ActionWeather:       "हवामान अंदाज (Hyper-Local Weather Forecast)",
	ActionPestDiagnosis: "कीड/रोग निदान (Pest/Disease Diagnosis)",
	ActionSoilHealth:    "माती आरोग्य विश्लेषण (Soil Health Analytics)",
	ActionIrrigation:    "सिंचन व्यवस्थापन (Irrigation Management)",
	ActionMarketPrice:   "बाजार भाव (Market Prices & Forecast)",
	ActionDroneBooking:  "ड्रोन सेवा बुकिंग (Book Drone-as-a-Service)",
	ActionExit:          "बाहेर पडा (Exit)",
}

var droneServices = []string{
	"Aerial Crop Health Survey (Multispectral)",
	"Precision Pesticide Spraying",
	"Precision Fertilizer Spraying",
}

// handler runs one action and reports whether the session should end.
type handler func(ctx context.Context) bool

// Menu is the interactive farmer session.
type Menu struct {
	aggregator *advisory.Aggregator
	profile    config.Profile

	in    *bufio.Scanner
	out   io.Writer
	title cases.Caser

	handlers map[Action]handler
}

// New creates a menu reading choices from in and writing reports to out.
func New(aggregator *advisory.Aggregator, profile config.Profile, in io.Reader, out io.Writer) *Menu {
	m := &Menu{
		aggregator: aggregator,
		profile:    profile,
		in:         bufio.NewScanner(in),
		out:        out,
		title:      cases.Title(language.English),
	}
	m.handlers = map[Action]handler{
		ActionWeather:       m.weather,
		ActionPestDiagnosis: m.pestDiagnosis,
		ActionSoilHealth:    m.soilHealth,
		ActionIrrigation:    m.irrigation,
		ActionMarketPrice:   m.marketPrice,
		ActionDroneBooking:  m.droneBooking,
		ActionExit:          m.exit,
	}
	return m
}

// Run loops until the farmer exits, the input ends or ctx is cancelled.
func (m *Menu) Run(ctx context.Context) error {
	fmt.Fprintln(m.out, "Initializing AgriLocal... (Offline-first architecture enabled)")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.display()

		choice, ok := m.prompt("Please choose an option (एक पर्याय निवडा): ")
		if !ok {
			return m.in.Err()
		}
		if m.Dispatch(ctx, choice) {
			return nil
		}
	}
}

// Dispatch runs the action named by choice and reports whether the session ended.
func (m *Menu) Dispatch(ctx context.Context, choice string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(choice))
	h, ok := m.handlers[Action(n)]
	if err != nil || !ok {
		fmt.Fprintln(m.out, "\nInvalid choice. Please try again. (चुकीचा पर्याय निवडला आहे)")
		return false
	}
	return h(ctx)
}

func (m *Menu) display() {
	rule := strings.Repeat("=", 40)
	fmt.Fprintf(m.out, "\n%s\n      AgriLocal (कृषीलोकल) Menu\n%s\n", rule, rule)
	fmt.Fprintf(m.out, "User: %s | Location: %s | FPO: %s\n", m.profile.Name, m.profile.Location, m.profile.FPO)
	fmt.Fprintln(m.out, strings.Repeat("-", 40))
	for a := ActionWeather; a <= ActionExit; a++ {
		fmt.Fprintf(m.out, "%d. %s\n", a, actionLabels[a])
	}
	fmt.Fprintln(m.out, rule)
}

func (m *Menu) prompt(label string) (string, bool) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

func (m *Menu) location() advisory.Coordinates {
	return advisory.Coordinates{Lat: m.profile.Lat, Lon: m.profile.Lon}
}

// selectCrop lists the profile crops and returns the chosen one.
func (m *Menu) selectCrop(heading string) (string, bool) {
	fmt.Fprintf(m.out, "\n%s\n", heading)
	for i, crop := range m.profile.Crops {
		fmt.Fprintf(m.out, "%d. %s\n", i+1, crop)
	}
	answer, ok := m.prompt("Enter crop number: ")
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(m.profile.Crops) {
		fmt.Fprintln(m.out, "Invalid crop selection.")
		return "", false
	}
	return m.profile.Crops[n-1], true
}

// advise runs a single-capability request and prints the report.
func (m *Menu) advise(ctx context.Context, c advisory.Capability, heading, crop, stage, image string) {
	rc, err := advisory.NewRequestContext(m.profile.Name, m.location(), crop, stage, image)
	if err != nil {
		fmt.Fprintf(m.out, "Cannot build request: %v\n", err)
		return
	}

	res := m.aggregator.Request(ctx, rc, c)
	fmt.Fprintf(m.out, "\n--- %s ---\n", heading)
	defer fmt.Fprintln(m.out, strings.Repeat("-", len(heading)+8))

	if err := res.Err(c); err != nil {
		fmt.Fprintf(m.out, "Service not available: %v\n", err)
		return
	}
	resp := res.Responses[c]
	if !resp.OK() {
		log.Debug().Str("capability", string(c)).Str("error", string(resp.Error)).Msg("degraded advisory")
		fmt.Fprintf(m.out, "Service temporarily unavailable (%s). Please try again later.\n", resp.Error)
		return
	}

	keys := make([]string, 0, len(resp.Payload))
	for k := range resp.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(m.out, "%s: %v\n", m.title.String(strings.ReplaceAll(k, "_", " ")), resp.Payload[k])
	}
}

func (m *Menu) weather(ctx context.Context) bool {
	m.advise(ctx, advisory.CapabilityWeather, "Weather Report", firstCrop(m.profile.Crops), "", "")
	return false
}

func (m *Menu) pestDiagnosis(ctx context.Context) bool {
	crop, ok := m.selectCrop("Select a crop to diagnose:")
	if !ok {
		return false
	}
	image, ok := m.prompt(fmt.Sprintf("Enter path to your %s leaf image (e.g., /sdcard/DCIM/photo.jpg): ", crop))
	if !ok || image == "" {
		fmt.Fprintln(m.out, "Image path cannot be empty.")
		return false
	}
	m.advise(ctx, advisory.CapabilityPestDiagnosis, "Diagnosis Report", crop, "", image)
	return false
}

func (m *Menu) soilHealth(ctx context.Context) bool {
	crop, ok := m.selectCrop("Select a crop for soil nutrient recommendations:")
	if !ok {
		return false
	}
	m.advise(ctx, advisory.CapabilitySoilHealth, "Soil Health Report", crop, "", "")
	return false
}

func (m *Menu) irrigation(ctx context.Context) bool {
	crop, ok := m.selectCrop("Select a crop for an optimized irrigation plan:")
	if !ok {
		return false
	}
	stage, ok := m.prompt("Enter crop stage (e.g., vegetative, flowering): ")
	if !ok {
		return false
	}
	m.advise(ctx, advisory.CapabilityIrrigation, "Smart Irrigation Plan", crop, stage, "")
	return false
}

func (m *Menu) marketPrice(ctx context.Context) bool {
	crop, ok := m.selectCrop("Select a crop to check market prices:")
	if !ok {
		return false
	}
	m.advise(ctx, advisory.CapabilityMarketPrice, "Market Intelligence Report", crop, "", "")
	return false
}

// droneBooking only records the request; no provider backs it.
func (m *Menu) droneBooking(context.Context) bool {
	fmt.Fprintln(m.out, "\n--- Book Drone-as-a-Service ---")
	for i, s := range droneServices {
		fmt.Fprintf(m.out, "%d. %s\n", i+1, s)
	}
	choice, ok := m.prompt("Select a service: ")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(droneServices) {
		fmt.Fprintln(m.out, "Invalid service selection.")
		return false
	}
	area, ok := m.prompt("Enter area in acres: ")
	if !ok {
		return false
	}
	if acres, err := strconv.ParseFloat(area, 64); err != nil || acres <= 0 {
		fmt.Fprintln(m.out, "Invalid area.")
		return false
	}

	log.Info().Int("service", n).Str("acres", area).Str("user", m.profile.Name).Msg("drone service booked")
	fmt.Fprintf(m.out, "\nBooking confirmed for service %d for %s acres.\n", n, area)
	fmt.Fprintln(m.out, "A local DaaS provider from your FPO network will contact you within 24 hours.")
	fmt.Fprintln(m.out, "This pay-per-use model avoids high hardware costs.")
	return false
}

func (m *Menu) exit(context.Context) bool {
	fmt.Fprintln(m.out, "\nThank you for using AgriLocal. (धन्यवाद!)")
	return true
}

func firstCrop(crops []string) string {
	if len(crops) == 0 {
		return "General"
	}
	return crops[0]
}
