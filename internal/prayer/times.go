package prayer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mnadev/adhango/pkg/calc"
	"github.com/mnadev/adhango/pkg/data"
	"github.com/mnadev/adhango/pkg/util"
)

// ErrInvalidCoordinates is returned for latitudes or longitudes out of range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Prayer keys, stable across languages. They are part of notification keys
// and callback data, so they must never change.
const (
	KeyFajr    = "fajr"
	KeySunrise = "sunrise"
	KeyDhuhr   = "dhuhr"
	KeyAsr     = "asr"
	KeyMaghrib = "maghrib"
	KeyIsha    = "isha"
)

var names = map[string]string{
	KeyFajr:    "Fajr",
	KeySunrise: "Sunrise",
	KeyDhuhr:   "Dhuhr",
	KeyAsr:     "Asr",
	KeyMaghrib: "Maghrib",
	KeyIsha:    "Isha",
}

// Name returns the display name of a prayer key, or the key itself.
func Name(key string) string {
	if n, ok := names[key]; ok {
		return n
	}
	return key
}

var adhanMethods = map[Method]calc.CalculationMethod{
	MuslimWorldLeague:     calc.MUSLIM_WORLD_LEAGUE,
	Egyptian:              calc.EGYPTIAN,
	Karachi:               calc.KARACHI,
	UmmAlQura:             calc.UMM_AL_QURA,
	Dubai:                 calc.DUBAI,
	MoonsightingCommittee: calc.MOON_SIGHTING_COMMITTEE,
	NorthAmerica:          calc.NORTH_AMERICA,
	Kuwait:                calc.KUWAIT,
	Qatar:                 calc.QATAR,
	Singapore:             calc.SINGAPORE,
}

// Times holds the six daily instants for one date and location.
type Times struct {
	Date    time.Time
	Params  Params
	Fajr    time.Time
	Sunrise time.Time
	Dhuhr   time.Time
	Asr     time.Time
	Maghrib time.Time
	Isha    time.Time
}

// Calculate returns the prayer times for the calendar day of date, as seen
// in date's location. Returned instants are in that location as well.
func Calculate(latitude, longitude float64, date time.Time, p Params) (Times, error) {
	if !validCoordinates(latitude, longitude) {
		return Times{}, fmt.Errorf("%w: %f, %f", ErrInvalidCoordinates, latitude, longitude)
	}

	method, ok := adhanMethods[p.Method]
	if !ok {
		return Times{}, fmt.Errorf("unknown calculation method %q", p.Method)
	}

	coords, err := util.NewCoordinates(latitude, longitude)
	if err != nil {
		return Times{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}

	params := calc.GetMethodParameters(method)
	if p.hanafiAsr() {
		params.Madhab = calc.HANAFI
	}
	if p.HighLatitude {
		params.HighLatitudeRule = calc.MIDDLE_OF_THE_NIGHT
	}

	loc := date.Location()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	pt, err := calc.NewPrayerTimes(coords, data.NewDateComponents(day), params)
	if err != nil {
		return Times{}, fmt.Errorf("calculate prayer times: %w", err)
	}

	t := Times{
		Date:    time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc),
		Params:  p,
		Fajr:    pt.Fajr.In(loc),
		Sunrise: pt.Sunrise.In(loc),
		Dhuhr:   pt.Dhuhr.In(loc),
		Asr:     pt.Asr.In(loc),
		Maghrib: pt.Maghrib.In(loc),
		Isha:    pt.Isha.In(loc),
	}
	if err := t.validate(); err != nil {
		return Times{}, err
	}
	return t, nil
}

// validate rejects results where the sun never reaches an angle the method
// needs and the library returned unordered instants.
func (t Times) validate() error {
	s := t.Schedule()
	for i := 1; i < len(s); i++ {
		if s[i-1].Time.IsZero() || !s[i-1].Time.Before(s[i].Time) {
			return fmt.Errorf("degenerate prayer times: %s at %s is not before %s at %s",
				s[i-1].Key, s[i-1].Time.Format(time.RFC3339), s[i].Key, s[i].Time.Format(time.RFC3339))
		}
	}
	return nil
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Info is a named instant of the daily schedule.
type Info struct {
	Name             string
	Key              string
	Time             time.Time
	SkipNotification bool
}

// Schedule lists the day in order: fajr, sunrise, dhuhr, asr, maghrib, isha.
// Sunrise is not a prayer and is marked SkipNotification.
func (t Times) Schedule() []Info {
	return []Info{
		{Name: Name(KeyFajr), Key: KeyFajr, Time: t.Fajr},
		{Name: Name(KeySunrise), Key: KeySunrise, Time: t.Sunrise, SkipNotification: true},
		{Name: Name(KeyDhuhr), Key: KeyDhuhr, Time: t.Dhuhr},
		{Name: Name(KeyAsr), Key: KeyAsr, Time: t.Asr},
		{Name: Name(KeyMaghrib), Key: KeyMaghrib, Time: t.Maghrib},
		{Name: Name(KeyIsha), Key: KeyIsha, Time: t.Isha},
	}
}

// CurrentAndNext finds the prayer in effect at now and the one after it.
//
// The first entry with now strictly before its time is next and the entry
// before it is current, so an instant equal to a prayer time counts as passed.
// Before the first entry current wraps to the last entry of schedule; its
// time belongs to the same day, so callers needing last night's Isha
// calculate the previous day. After the last entry current is the last one and next is the first entry
// of schedule; the caller decides that it means tomorrow.
func CurrentAndNext(schedule []Info, now time.Time) (current, next Info) {
	if len(schedule) == 0 {
		return Info{}, Info{}
	}
	for i, p := range schedule {
		if now.Before(p.Time) {
			if i == 0 {
				return schedule[len(schedule)-1], p
			}
			return schedule[i-1], p
		}
	}
	return schedule[len(schedule)-1], schedule[0]
}

// FormatTime renders t as HH:MM in loc.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = t.Location()
	}
	return t.In(loc).Format("15:04")
}
