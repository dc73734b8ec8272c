package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// VehicleType is the closed set of hauler vehicle classes.
type VehicleType string

const (
	VehicleBike       VehicleType = "BIKE"
	VehicleAuto       VehicleType = "AUTO"
	VehiclePickupVan  VehicleType = "PICKUP_VAN"
	VehicleSmallTruck VehicleType = "SMALL_TRUCK"
)

// VehicleEligibility is one row of the authoritative eligibility table.
type VehicleEligibility struct {
	Type          VehicleType `json:"vehicle_type"`
	MaxCapacityKg float64     `json:"max_capacity_kg"`
	MaxRadiusKm   float64     `json:"max_radius_km"`
}

var eligibilityTable = []VehicleEligibility{
	{VehicleBike, 20, 10},
	{VehicleAuto, 100, 30},
	{VehiclePickupVan, 500, 80},
	{VehicleSmallTruck, 2000, 150},
}

// EligibilityTable returns the full vehicle eligibility table.
func EligibilityTable() []VehicleEligibility {
	out := make([]VehicleEligibility, len(eligibilityTable))
	copy(out, eligibilityTable)
	return out
}

// EligibilityFor looks up the eligibility row for a vehicle type.
func EligibilityFor(t VehicleType) (VehicleEligibility, bool) {
	for _, e := range eligibilityTable {
		if e.Type == t {
			return e, true
		}
	}
	return VehicleEligibility{}, false
}

// PayloadCapacity validates a capacity against the class maximum.
func PayloadCapacity(t VehicleType, capacityKg float64) (string, bool) {
	e, ok := EligibilityFor(t)
	if !ok {
		return fmt.Sprintf("unknown vehicle type %q", t), false
	}
	if capacityKg <= 0 {
		return "payload capacity must be positive", false
	}
	if capacityKg > e.MaxCapacityKg {
		return fmt.Sprintf("payload capacity %.0f kg exceeds the %.0f kg limit for %s", capacityKg, e.MaxCapacityKg, t), false
	}
	return "", true
}

var (
	vehicleNumberPattern = regexp.MustCompile(`^[A-Z]{2}-[0-9]{2}-[A-Z]{1,2}-[0-9]{4}$`)
	vehicleSeparators    = regexp.MustCompile(`[\s.\-]+`)
)

// VehicleNumber normalizes a registration plate (uppercase; spaces, dots,
// and runs of hyphens collapse to single hyphens) and validates the
// `SS-DD-L[L]-NNNN` form.
func VehicleNumber(raw string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(raw))
	n = vehicleSeparators.ReplaceAllString(n, "-")
	n = strings.Trim(n, "-")
	return n, vehicleNumberPattern.MatchString(n)
}

// State-specific driving licence formats. The union covers the forms seen in
// the field: 2-letter state code + 2-digit RTO + 4-digit year + 7-digit
// serial, with or without separators, and the older 11-digit form.
var dlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[0-9]{4}[0-9]{7}$`),
	regexp.MustCompile(`^[A-Z]{2}-[0-9]{2}-[0-9]{4}-[0-9]{7}$`),
	regexp.MustCompile(`^[A-Z]{2}[0-9]{13}$`),
}

// DrivingLicense normalizes (uppercase, strip whitespace) and validates a
// driving licence number against the accepted state patterns.
func DrivingLicense(raw string) (string, bool) {
	n := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	for _, p := range dlPatterns {
		if p.MatchString(n) {
			return n, true
		}
	}
	return n, false
}

// DLExpiry parses a YYYY-MM-DD date and requires it to be strictly after
// today at local midnight.
func DLExpiry(raw string, now time.Time) (time.Time, bool) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), now.Location())
	if err != nil {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return d, d.After(today)
}

// MaskDL formats a driving licence for display as first-2 + **** + last-4.
// Storage keeps the full number; only reads are masked.
func MaskDL(dl string) string {
	if len(dl) < 6 {
		return dl
	}
	return dl[:2] + "****" + dl[len(dl)-4:]
}
