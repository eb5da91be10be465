package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mubarakway/internal/model"
	"mubarakway/internal/prayer"
	"mubarakway/internal/storage"
)

const (
	cmdPrayer   = "prayer"
	cmdLocation = "location"
	cmdQibla    = "qibla"
	cmdLibrary  = "library"
	cmdNashids  = "nashids"
)

type webAppLink struct {
	text   string
	button string
	path   string
}

var webAppLinks = map[string]webAppLink{
	cmdQibla:   {text: "Qibla direction\n\nFind the exact direction to Mecca with the interactive compass.", button: "Find the qibla", path: "/prayer/qibla"},
	cmdLibrary: {text: "Islamic library\n\nOpen the app to read books and treatises.", button: "Open the library", path: "/library"},
	cmdNashids: {text: "Nashid collection\n\nListen to nashids and build your own playlists.", button: "Listen to nashids", path: "/library/nashids"},
}

func (b *Bot) touchUser(ctx context.Context, from *tgbotapi.User) {
	u := &model.User{
		TelegramID:   from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	}
	if err := b.store.UpsertUser(ctx, u); err != nil {
		b.log.Error("upsert user", "user_id", from.ID, "error", err)
	}
}

func (b *Bot) handleStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, `Assalamu alaikum! Welcome to MubarakWay.

Prayer times for your location, a reminder before each prayer and a notification when it begins.

Quick start:
1. /location - share your location
2. /prayer - today's prayer times

Use /help for the full command reference.`)
	msg.ReplyMarkup = b.mainMenu()
	b.send(msg)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/start - main menu
/prayer - today's prayer times
/location - set your location (or /location <lat> <lon>)
/qibla - qibla direction
/library - book library
/nashids - nashid collection
/help - this help

After each prayer notification, tap a button to record whether you prayed.`)
}

func (b *Bot) handlePrayer(ctx context.Context, chatID, userID int64) {
	u, err := b.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.log.Error("get user", "user_id", userID, "error", err)
		b.reply(chatID, "Something went wrong. Please try again later.")
		return
	}
	if u == nil || u.Location == nil {
		msg := tgbotapi.NewMessage(chatID, "Set your location first to calculate prayer times.")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Set location", cbSetLocation),
			),
		)
		b.send(msg)
		return
	}

	times, now, loc, err := b.scheduleFor(u)
	if err != nil {
		b.log.Warn("calculate prayer times", "user_id", userID, "error", err)
		b.reply(chatID, "Could not calculate prayer times for your location.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatSchedule(times, now, loc))
	if b.cfg.WebAppURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("Monthly schedule", b.cfg.WebAppURL+"/prayer/times"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Qibla direction", cmdQibla),
			),
		)
	}
	b.send(msg)
}

func (b *Bot) handleLocationCommand(ctx context.Context, chatID, userID int64, args string) {
	if args == "" {
		b.requestLocation(chatID)
		return
	}
	lat, lon, err := ParseCoordinates(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.handleLocation(ctx, chatID, userID, lat, lon)
}

func (b *Bot) requestLocation(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Setting your location\n\nPrayer times are calculated from your position. Tap the button below to share it.")
	msg.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation("Send location"),
		),
	)
	b.send(msg)
}

func (b *Bot) handleLocation(ctx context.Context, chatID, userID int64, lat, lon float64) {
	b.log.Info("location received", "user_id", userID, "lat", lat, "lon", lon)

	u, err := b.store.GetUser(ctx, userID)
	if err != nil {
		b.log.Error("get user", "user_id", userID, "error", err)
		b.replyRemoveKeyboard(chatID, "Could not save your location. Please try again later.")
		return
	}

	loc := model.Location{Latitude: lat, Longitude: lon, Timezone: prayer.TimezoneFor(lat, lon)}
	if u.Location != nil {
		loc.City = u.Location.City
	}
	if err := b.store.SetLocation(ctx, userID, loc); err != nil {
		b.log.Error("set location", "user_id", userID, "error", err)
		b.replyRemoveKeyboard(chatID, "Could not save your location. Please try again later.")
		return
	}
	u.Location = &loc

	times, now, tz, err := b.scheduleFor(u)
	if err != nil {
		b.log.Warn("calculate prayer times", "user_id", userID, "error", err)
		b.replyRemoveKeyboard(chatID, "Location saved, but prayer times could not be calculated for it.")
		return
	}
	b.replyRemoveKeyboard(chatID, FormatLocationSaved(loc, FormatSchedule(times, now, tz)))
}

func (b *Bot) handleWebAppLink(chatID int64, name string) {
	link, ok := webAppLinks[name]
	if !ok {
		return
	}
	if b.cfg.WebAppURL == "" {
		b.reply(chatID, "The app is not available right now.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, link.text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(link.button, b.cfg.WebAppURL+link.path),
		),
	)
	b.send(msg)
}

func (b *Bot) handleText(chatID int64, text string) {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "salam") || strings.Contains(t, "hello"):
		b.reply(chatID, "Wa alaikum assalam! Use /start to open the main menu.")
	case strings.Contains(t, "thank") || strings.Contains(t, "shukran"):
		b.reply(chatID, "BarakAllahu feek! Glad to help.")
	case strings.Contains(t, "help"):
		b.reply(chatID, "Use /help for the list of commands.")
	default:
		b.reply(chatID, "Use /start to open the MubarakWay menu.")
	}
}

func (b *Bot) replyRemoveKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(msg)
}

// scheduleFor calculates today's prayer times for a user with a location.
func (b *Bot) scheduleFor(u *model.User) (prayer.Times, time.Time, *time.Location, error) {
	l := u.Location
	tz := l.Timezone
	if tz == "" {
		tz = prayer.TimezoneFor(l.Latitude, l.Longitude)
	}
	loc := prayer.LoadLocation(tz, time.UTC)
	now := b.now().In(loc)

	params := prayer.ResolveParams(l.Latitude, u.CalculationMethod, u.Madhab, b.cfg.DefaultMethod, b.cfg.DefaultMadhab)
	times, err := prayer.Calculate(l.Latitude, l.Longitude, now, params)
	if err != nil {
		return prayer.Times{}, now, loc, fmt.Errorf("calculate for user %d: %w", u.TelegramID, err)
	}
	return times, now, loc, nil
}

func (b *Bot) mainMenu() tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Prayer times", cbPrayerTimes),
			tgbotapi.NewInlineKeyboardButtonData("Set location", cbSetLocation),
		),
	}
	if b.cfg.WebAppURL != "" {
		rows = append([][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("Open MubarakWay", b.cfg.WebAppURL),
			),
		}, rows...)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Library", cmdLibrary),
			tgbotapi.NewInlineKeyboardButtonData("Nashids", cmdNashids),
			tgbotapi.NewInlineKeyboardButtonData("Qibla", cmdQibla),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func prayerStatusKeyboard(prayerKey string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Prayed", cbPrayerRead+prayerKey),
			tgbotapi.NewInlineKeyboardButtonData("Missed", cbPrayerNotRead+prayerKey),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Will make up", cbPrayerMakeup+prayerKey),
			tgbotapi.NewInlineKeyboardButtonData("In the mosque", cbPrayerMosque+prayerKey),
		),
	)
}
