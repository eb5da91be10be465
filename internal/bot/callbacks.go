package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mubarakway/internal/model"
	"mubarakway/internal/prayer"
)

const (
	cbPrayerTimes = "prayer_times"
	cbSetLocation = "set_location"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	b.log.Info("callback",
		"data", data,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch {
	case data == cbPrayerTimes:
		b.ackCallback(cb.ID, "")
		b.handlePrayer(ctx, chatID, cb.From.ID)
	case data == cbSetLocation:
		b.ackCallback(cb.ID, "")
		b.requestLocation(chatID)
	case data == cmdQibla || data == cmdLibrary || data == cmdNashids:
		b.ackCallback(cb.ID, "")
		b.handleWebAppLink(chatID, data)
	case strings.HasPrefix(data, "prayer_"):
		b.handlePrayerMark(ctx, cb)
	default:
		b.ackCallback(cb.ID, "")
	}
}

func (b *Bot) handlePrayerMark(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	status, key, err := ParsePrayerCallback(cb.Data)
	if err != nil {
		b.log.Warn("parse prayer callback", "data", cb.Data, "error", err)
		b.ackCallback(cb.ID, "")
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		b.log.Error("clear prayer buttons", "chat_id", chatID, "error", err)
	}

	mark := &model.PrayerMark{
		TelegramID: cb.From.ID,
		PrayerKey:  key,
		Date:       b.markDate(ctx, cb.From.ID),
		Status:     status,
	}
	if err := b.store.SetPrayerMark(ctx, mark); err != nil {
		b.log.Error("save prayer mark", "user_id", cb.From.ID, "prayer", key, "error", err)
		b.ackCallback(cb.ID, "Could not save, please try again.")
		return
	}

	b.ackCallback(cb.ID, "Saved")
	b.reply(chatID, FormatMarkReply(status, key))
}

// markDate is today's date in the user's time zone.
func (b *Bot) markDate(ctx context.Context, userID int64) string {
	loc := time.UTC
	if u, err := b.store.GetUser(ctx, userID); err == nil && u.Location != nil {
		tz := u.Location.Timezone
		if tz == "" {
			tz = prayer.TimezoneFor(u.Location.Latitude, u.Location.Longitude)
		}
		loc = prayer.LoadLocation(tz, time.UTC)
	}
	return b.now().In(loc).Format(time.DateOnly)
}

func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}
