// Package gateway defines the chat service boundary used by the engine.
package gateway

import (
	"context"
	"errors"

	"teleraid/internal/models"
)

var (
	// ErrNotModified is returned by EditMessage when the remote message
	// already has the requested content.
	ErrNotModified = errors.New("message is not modified")
	// ErrTransient marks errors worth retrying (network, rate limit, 5xx).
	ErrTransient = errors.New("transient gateway error")
)

// ParseMode selects how message text is interpreted.
type ParseMode string

const (
	ModePlain ParseMode = ""
	ModeHTML  ParseMode = "HTML"
)

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is a single row of inline buttons.
type Keyboard []Button

// SentMessage is a message as the chat service stored it: plain text plus
// formatting spans in rune offsets.
type SentMessage struct {
	ID    int
	Text  string
	Spans []models.Span
}

// Callback is a button press on an inline keyboard.
type Callback struct {
	UserID      int64
	DisplayName string
	Data        string
	ChatID      int64
	MessageID   int
	MessageText string
	Spans       []models.Span
}

// Update is one entry of the update feed.
type Update struct {
	ID       int
	Callback *Callback
}

// Gateway is the set of chat primitives the engine needs.
type Gateway interface {
	SendMedia(ctx context.Context, chatID int64, mediaRef string) (int, error)
	SendLocation(ctx context.Context, chatID int64, lat, lon float64) (int, error)
	SendMessage(ctx context.Context, chatID int64, text string, mode ParseMode, kb Keyboard) (SentMessage, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, mode ParseMode, kb Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	PollUpdates(ctx context.Context, offset int) ([]Update, error)
}
