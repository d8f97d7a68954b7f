package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"teleraid/internal/config"
	"teleraid/internal/gateway"
	"teleraid/internal/models"
)

var _ gateway.Gateway = (*Bot)(nil)

// Bot is the Telegram Bot API implementation of gateway.Gateway.
type Bot struct {
	api         *tgbotapi.BotAPI
	limiter     *rate.Limiter
	pollTimeout int
	logger      *zap.Logger
}

// NewBot creates a new Telegram bot instance and checks the token with getMe.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	endpoint := cfg.Telegram.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	timeout := cfg.Updates.LongPollTimeoutSeconds
	client := &http.Client{Timeout: time.Duration(timeout+30) * time.Second}

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:         botAPI,
		limiter:     rate.NewLimiter(rate.Limit(cfg.Telegram.RateLimitPerSecond), cfg.Telegram.RateLimitBurst),
		pollTimeout: timeout,
		logger:      logger,
	}, nil
}

// SendMedia sends a sticker by file id.
func (b *Bot) SendMedia(ctx context.Context, chatID int64, mediaRef string) (int, error) {
	msg, err := b.send(ctx, tgbotapi.NewSticker(chatID, tgbotapi.FileID(mediaRef)))
	if err != nil {
		return 0, fmt.Errorf("failed to send sticker: %w", err)
	}
	return msg.MessageID, nil
}

// SendLocation sends a map pin.
func (b *Bot) SendLocation(ctx context.Context, chatID int64, lat, lon float64) (int, error) {
	msg, err := b.send(ctx, tgbotapi.NewLocation(chatID, lat, lon))
	if err != nil {
		return 0, fmt.Errorf("failed to send location: %w", err)
	}
	return msg.MessageID, nil
}

// SendMessage sends text with an optional inline keyboard and returns the
// message as Telegram stored it.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, mode gateway.ParseMode, kb gateway.Keyboard) (gateway.SentMessage, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = string(mode)
	if len(kb) > 0 {
		msg.ReplyMarkup = markup(kb)
	}

	sent, err := b.send(ctx, msg)
	if err != nil {
		return gateway.SentMessage{}, fmt.Errorf("failed to send message: %w", err)
	}
	return gateway.SentMessage{
		ID:    sent.MessageID,
		Text:  sent.Text,
		Spans: entitySpans(sent.Text, sent.Entities),
	}, nil
}

// EditMessage replaces the text and keyboard of a message.
func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string, mode gateway.ParseMode, kb gateway.Keyboard) error {
	var edit tgbotapi.EditMessageTextConfig
	if len(kb) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup(kb))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = string(mode)

	if err := b.request(ctx, edit); err != nil {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}

// DeleteMessage removes a message from the chat.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := b.request(ctx, tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	return nil
}

// PollUpdates long-polls getUpdates from offset. Callback queries are
// acknowledged before they are returned.
func (b *Bot) PollUpdates(ctx context.Context, offset int) ([]gateway.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = b.pollTimeout
	u.AllowedUpdates = []string{"callback_query"}

	raw, err := b.api.GetUpdates(u)
	if err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", classify(err))
	}

	updates := make([]gateway.Update, 0, len(raw))
	for _, update := range raw {
		out := gateway.Update{ID: update.UpdateID}
		if query := update.CallbackQuery; query != nil {
			b.ack(query)
			out.Callback = callback(query)
		}
		updates = append(updates, out)
	}
	return updates, nil
}

func (b *Bot) ack(query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("Failed to send callback response", zap.String("callback_id", query.ID), zap.Error(err))
	}
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, err
	}
	msg, err := b.api.Send(c)
	if err != nil {
		return tgbotapi.Message{}, classify(err)
	}
	return msg, nil
}

func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.api.Request(c); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Bot API failures onto the gateway error kinds.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case strings.Contains(apiErr.Message, "message is not modified"):
			return fmt.Errorf("%w: %s", gateway.ErrNotModified, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s", gateway.ErrTransient, apiErr.Message)
		}
		return err
	}
	return fmt.Errorf("%w: %v", gateway.ErrTransient, err)
}

func markup(kb gateway.Keyboard) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, btn := range kb {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
}

func callback(query *tgbotapi.CallbackQuery) *gateway.Callback {
	cb := &gateway.Callback{Data: query.Data}
	if query.From != nil {
		cb.UserID = query.From.ID
		cb.DisplayName = displayName(query.From)
	}
	if query.Message != nil {
		cb.MessageID = query.Message.MessageID
		cb.MessageText = query.Message.Text
		cb.Spans = entitySpans(query.Message.Text, query.Message.Entities)
		if query.Message.Chat != nil {
			cb.ChatID = query.Message.Chat.ID
		}
	}
	return cb
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

var entityKinds = map[string]models.SpanKind{
	"bold":   models.SpanBold,
	"italic": models.SpanItalic,
}

// entitySpans converts Telegram entities, whose offsets count UTF-16 code
// units, into rune-offset spans. Entity types other than bold and italic
// are dropped.
func entitySpans(text string, entities []tgbotapi.MessageEntity) []models.Span {
	if len(entities) == 0 {
		return nil
	}

	// starts[i] is the UTF-16 position of rune i.
	var starts []int
	pos := 0
	for _, r := range text {
		starts = append(starts, pos)
		pos++
		if r > 0xFFFF {
			pos++ // surrogate pair
		}
	}
	toRune := func(u int) int { return sort.SearchInts(starts, u) }

	var spans []models.Span
	for _, e := range entities {
		kind, ok := entityKinds[e.Type]
		if !ok {
			continue
		}
		start := toRune(e.Offset)
		end := toRune(e.Offset + e.Length)
		if end <= start {
			continue
		}
		spans = append(spans, models.Span{Kind: kind, Offset: start, Length: end - start})
	}
	return spans
}
