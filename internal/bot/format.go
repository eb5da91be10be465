package bot

import (
	"fmt"
	"strings"
	"time"

	"mubarakway/internal/model"
	"mubarakway/internal/prayer"
)

// FormatPrayerNotification formats the message sent when a prayer time arrives.
func FormatPrayerNotification(p prayer.Info, loc *time.Location) string {
	return fmt.Sprintf("It is time for %s prayer\n\n%s\n\nDo not delay your prayer!",
		p.Name, prayer.FormatTime(p.Time, loc))
}

// FormatReminder formats the message sent shortly before a prayer.
func FormatReminder(p prayer.Info, minutes int, loc *time.Location) string {
	return fmt.Sprintf("%s in %d min\n\nTime: %s\n\nGet ready for prayer.",
		p.Name, minutes, prayer.FormatTime(p.Time, loc))
}

// FormatSchedule formats a day of prayer times with the upcoming prayer.
func FormatSchedule(times prayer.Times, now time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prayer times for %s\n\n", times.Date.Format("Monday, 2 January"))
	for _, p := range times.Schedule() {
		fmt.Fprintf(&b, "%-8s %s\n", p.Name, prayer.FormatTime(p.Time, loc))
	}

	_, next := prayer.CurrentAndNext(times.Schedule(), now)
	if next.Time.After(now) {
		fmt.Fprintf(&b, "\nNext: %s at %s", next.Name, prayer.FormatTime(next.Time, loc))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatLocationSaved confirms a saved location and shows today's schedule.
func FormatLocationSaved(l model.Location, schedule string) string {
	var b strings.Builder
	b.WriteString("Location saved!\n\n")
	fmt.Fprintf(&b, "Coordinates: %.4f, %.4f\n", l.Latitude, l.Longitude)
	fmt.Fprintf(&b, "Time zone: %s\n\n", l.Timezone)
	b.WriteString(schedule)
	b.WriteString("\n\nYou will be notified when each prayer time arrives.")
	return b.String()
}

// FormatMarkReply is the answer to a prayer status button.
func FormatMarkReply(status model.MarkStatus, prayerKey string) string {
	name := prayer.Name(prayerKey)
	switch status {
	case model.MarkPrayed:
		return fmt.Sprintf("Alhamdulillah! May Allah accept your %s prayer.\n\nDo not forget the dua after prayer.", name)
	case model.MarkMosque:
		return fmt.Sprintf("MashaAllah! %s prayed in the mosque.\n\nThe reward of congregational prayer is multiplied.", name)
	case model.MarkMakeup:
		return fmt.Sprintf("%s noted to make up.\n\nTry to make it up as soon as you can.", name)
	default:
		return fmt.Sprintf("%s noted as missed.\n\nIt is never too late to repent and make it up.", name)
	}
}
