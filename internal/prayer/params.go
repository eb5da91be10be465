// Package prayer calculates daily prayer times and locates the current and next prayer.
package prayer

import (
	"fmt"
	"math"
	"strings"
)

// Method is a named set of twilight angles used for Fajr and Isha.
type Method string

// Supported calculation methods.
const (
	MuslimWorldLeague     Method = "MuslimWorldLeague"
	Egyptian              Method = "Egyptian"
	Karachi               Method = "Karachi"
	UmmAlQura             Method = "UmmAlQura"
	Dubai                 Method = "Dubai"
	MoonsightingCommittee Method = "MoonsightingCommittee"
	NorthAmerica          Method = "NorthAmerica"
	Kuwait                Method = "Kuwait"
	Qatar                 Method = "Qatar"
	Singapore             Method = "Singapore"
)

// DefaultMethod is used when a user has not chosen a method.
const DefaultMethod = MuslimWorldLeague

var methods = []Method{
	MuslimWorldLeague, Egyptian, Karachi, UmmAlQura, Dubai,
	MoonsightingCommittee, NorthAmerica, Kuwait, Qatar, Singapore,
}

// Methods returns all supported calculation methods.
func Methods() []Method {
	out := make([]Method, len(methods))
	copy(out, methods)
	return out
}

// ParseMethod matches s case-insensitively against the supported methods.
func ParseMethod(s string) (Method, error) {
	s = strings.TrimSpace(s)
	for _, m := range methods {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown calculation method %q", s)
}

// Madhab is a juristic school. Only the Asr shadow length differs between them.
type Madhab string

// Supported madhabs.
const (
	Shafi   Madhab = "shafi"
	Hanafi  Madhab = "hanafi"
	Maliki  Madhab = "maliki"
	Hanbali Madhab = "hanbali"
)

// ParseMadhab matches s case-insensitively against the supported madhabs.
func ParseMadhab(s string) (Madhab, error) {
	switch Madhab(strings.ToLower(strings.TrimSpace(s))) {
	case Shafi:
		return Shafi, nil
	case Hanafi:
		return Hanafi, nil
	case Maliki:
		return Maliki, nil
	case Hanbali:
		return Hanbali, nil
	}
	return "", fmt.Errorf("unknown madhab %q", s)
}

// HighLatitudeThreshold is the absolute latitude above which the
// middle-of-the-night rule bounds Fajr and Isha.
const HighLatitudeThreshold = 48.0

// Params selects how prayer times are calculated for one location.
type Params struct {
	Method       Method
	Madhab       Madhab
	HighLatitude bool
}

// NewParams builds calculation parameters for a location at latitude.
// Empty method or madhab fall back to MuslimWorldLeague and Shafi.
func NewParams(latitude float64, method Method, madhab Madhab) Params {
	if method == "" {
		method = DefaultMethod
	}
	if madhab == "" {
		madhab = Shafi
	}
	return Params{
		Method:       method,
		Madhab:       madhab,
		HighLatitude: math.Abs(latitude) > HighLatitudeThreshold,
	}
}

// hanafiAsr reports whether Asr uses the double shadow length.
func (p Params) hanafiAsr() bool {
	return p.Madhab == Hanafi
}

// ResolveParams builds Params from stored user settings. Empty or
// unrecognised values fall back to defMethod and defMadhab.
func ResolveParams(latitude float64, method, madhab string, defMethod Method, defMadhab Madhab) Params {
	m, err := ParseMethod(method)
	if err != nil {
		m = defMethod
	}
	md, err := ParseMadhab(madhab)
	if err != nil {
		md = defMadhab
	}
	return NewParams(latitude, m, md)
}
