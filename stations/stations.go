// Package stations maps free-text station names from itinerary legs to CRS
// codes.
package stations

import (
	"strings"

	"github.com/mickamy/journeyoutbox/validate"
)

// Unresolved is stored in place of a CRS code when a name has no mapping.
const Unresolved = "ZZZ"

var byName = map[string]string{
	"london kings cross":      "KGX",
	"london king's cross":     "KGX",
	"london euston":           "EUS",
	"london paddington":       "PAD",
	"london st pancras":       "STP",
	"london liverpool street": "LST",
	"london waterloo":         "WAT",
	"york":                    "YRK",
	"leeds":                   "LDS",
	"newcastle":               "NCL",
	"edinburgh":               "EDB",
	"edinburgh waverley":      "EDB",
	"doncaster":               "DON",
	"peterborough":            "PBO",
	"manchester piccadilly":   "MAN",
	"birmingham new street":   "BHM",
	"bristol temple meads":    "BRI",
	"reading":                 "RDG",
	"cardiff central":         "CDF",
	"glasgow central":         "GLC",
}

// Resolve returns the CRS code for name. A name that is already a CRS code is
// returned unchanged. When nothing matches it returns Unresolved and false.
func Resolve(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if validate.IsCRS(trimmed) {
		return trimmed, true
	}
	if code, ok := byName[strings.ToLower(trimmed)]; ok {
		return code, true
	}
	return Unresolved, false
}
