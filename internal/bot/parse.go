package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mubarakway/internal/model"
	"mubarakway/internal/prayer"
)

// Callback data prefixes of the prayer status buttons.
const (
	cbPrayerRead    = "prayer_read_"
	cbPrayerNotRead = "prayer_not_read_"
	cbPrayerMakeup  = "prayer_makeup_"
	cbPrayerMosque  = "prayer_mosque_"
)

var callbackStatuses = []struct {
	prefix string
	status model.MarkStatus
}{
	{cbPrayerRead, model.MarkPrayed},
	{cbPrayerNotRead, model.MarkMissed},
	{cbPrayerMakeup, model.MarkMakeup},
	{cbPrayerMosque, model.MarkMosque},
}

var notifiablePrayers = map[string]bool{
	prayer.KeyFajr:    true,
	prayer.KeyDhuhr:   true,
	prayer.KeyAsr:     true,
	prayer.KeyMaghrib: true,
	prayer.KeyIsha:    true,
}

// ParsePrayerCallback splits prayer status callback data such as
// "prayer_mosque_asr" into a status and a prayer key.
func ParsePrayerCallback(data string) (model.MarkStatus, string, error) {
	for _, cs := range callbackStatuses {
		key, ok := strings.CutPrefix(data, cs.prefix)
		if !ok {
			continue
		}
		if !notifiablePrayers[key] {
			return "", "", fmt.Errorf("unknown prayer %q", key)
		}
		return cs.status, key, nil
	}
	return "", "", fmt.Errorf("not a prayer callback: %q", data)
}

// ParseCoordinates reads "<lat> <lon>" or "<lat>, <lon>".
func ParseCoordinates(args string) (float64, float64, error) {
	parts := strings.Fields(strings.ReplaceAll(args, ",", " "))
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("usage: /location <latitude> <longitude>")
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude must be a number between -90 and 90")
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude must be a number between -180 and 180")
	}
	return lat, lon, nil
}
