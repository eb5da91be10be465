package prayer

import (
	"fmt"
	"math"
	"time"
)

type tzBox struct {
	name           string
	minLat, maxLat float64
	minLon, maxLon float64
}

// tzBoxes are checked in order; the first box containing a point wins, so
// narrow regions come before the broad Russia box at the end.
var tzBoxes = []tzBox{
	{"Europe/Kaliningrad", 54, 56, 19, 23},
	{"Europe/Samara", 50, 55, 45, 55},
	{"Asia/Yekaterinburg", 54, 62, 55, 65},
	{"Asia/Omsk", 53, 60, 68, 78},
	{"Asia/Novosibirsk", 53, 60, 78, 84},
	{"Asia/Krasnoyarsk", 51, 72, 84, 100},
	{"Asia/Irkutsk", 50, 62, 100, 120},
	{"Asia/Yakutsk", 55, 75, 115, 148},
	{"Asia/Vladivostok", 42, 70, 130, 150},
	{"Asia/Tashkent", 37, 46, 55, 74},
	{"Asia/Almaty", 40, 55, 49, 88},
	{"Europe/Istanbul", 36, 42, 25, 45},
	{"Asia/Dubai", 22, 27, 51, 57},
	{"Asia/Riyadh", 16, 33, 34, 56},
	{"Europe/London", 49, 61, -11, 2},
	{"Europe/Paris", 41, 51, -5, 10},
	{"Europe/Berlin", 47, 55, 5, 16},
	{"Asia/Jakarta", -11, 6, 95, 141},
	{"Asia/Karachi", 23, 38, 60, 78},
	{"Asia/Dhaka", 20, 27, 88, 93},
	{"Asia/Tehran", 25, 40, 44, 64},
	{"Asia/Baghdad", 29, 38, 38, 49},
	{"Europe/Moscow", 50.5, 56, 36.5, 45},
	{"Europe/Kiev", 44, 52.3, 22, 40},
	{"Europe/Minsk", 51, 57, 23, 33},
	{"Europe/Moscow", 41, 82, 19, 180},
}

// TimezoneFor guesses an IANA zone for a point from a coarse table of regions
// where the app has users. Points outside the table get a fixed Etc/GMT zone
// derived from the longitude.
func TimezoneFor(lat, lon float64) string {
	for _, b := range tzBoxes {
		if lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon {
			return b.name
		}
	}

	offset := int(math.Round(lon / 15))
	switch {
	case offset == 0:
		return "Etc/GMT"
	case offset > 0:
		// Etc/GMT signs are inverted: Etc/GMT-3 is UTC+3.
		return fmt.Sprintf("Etc/GMT-%d", offset)
	default:
		return fmt.Sprintf("Etc/GMT+%d", -offset)
	}
}

// LoadLocation resolves name, falling back to fallback and then UTC.
func LoadLocation(name string, fallback *time.Location) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.UTC
}
