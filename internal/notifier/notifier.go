// Package notifier sends the three-message announcement of a raid.
package notifier

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"teleraid/internal/gateway"
	"teleraid/internal/message_store"
	"teleraid/internal/models"
	"teleraid/internal/poll"
)

// Resolver looks up display values for raid ids.
type Resolver interface {
	PokemonName(id int) (string, error)
	MoveName(id int) (string, error)
	Sticker(pokemonID int) (string, error)
	Translate(word string) string
}

// Stage is a step of the notification unit.
type Stage int

const (
	StageCompose Stage = iota
	StageMedia
	StageLocation
	StageText
)

func (s Stage) String() string {
	switch s {
	case StageCompose:
		return "compose"
	case StageMedia:
		return "media"
	case StageLocation:
		return "location"
	case StageText:
		return "text"
	default:
		return "unknown"
	}
}

// SendError reports where a notification unit stopped and which messages
// had already been sent. Sent messages are left in the chat.
type SendError struct {
	Stage Stage
	Sent  models.Siblings
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("notification failed at %s stage: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Notifier composes and sends raid announcements.
type Notifier struct {
	gw       gateway.Gateway
	names    Resolver
	messages *message_store.Store
	renderer *poll.Renderer
	chatID   int64
	loc      *time.Location
	logger   *zap.Logger
}

// New creates a Notifier posting to chatID. tzHours shifts displayed times
// from UTC.
func New(gw gateway.Gateway, names Resolver, messages *message_store.Store, chatID int64, tzHours float64, logger *zap.Logger) *Notifier {
	return &Notifier{
		gw:       gw,
		names:    names,
		messages: messages,
		renderer: poll.NewRenderer(names),
		chatID:   chatID,
		loc:      time.FixedZone(fmt.Sprintf("UTC%+g", tzHours), int(tzHours*3600)),
		logger:   logger,
	}
}

// Compose renders the HTML text of the announcement.
func (n *Notifier) Compose(r models.Raid) (string, error) {
	pokemon, err := n.names.PokemonName(r.PokemonID)
	if err != nil {
		return "", err
	}
	move1, err := n.names.MoveName(r.Move1)
	if err != nil {
		return "", err
	}
	move2, err := n.names.MoveName(r.Move2)
	if err != nil {
		return "", err
	}

	tr := n.names.Translate
	return fmt.Sprintf("<b>%s - %s %d - %s</b>\n%s / %s\n%s <b>%s</b>.",
		html.EscapeString(tr("Raid")), html.EscapeString(tr("Level")), r.Level, html.EscapeString(pokemon),
		html.EscapeString(move1), html.EscapeString(move2),
		html.EscapeString(tr("Raid ends at")), r.End.In(n.loc).Format("15:04"),
	), nil
}

// Notify sends media, location and text for r, in that order, and on full
// success stores the poll record. It does not touch the raid itself; the
// caller marks it notified when Notify returns nil.
func (n *Notifier) Notify(ctx context.Context, r models.Raid) (models.MessageRecord, error) {
	text, err := n.Compose(r)
	if err != nil {
		return models.MessageRecord{}, &SendError{Stage: StageCompose, Err: err}
	}
	sticker, err := n.names.Sticker(r.PokemonID)
	if err != nil {
		return models.MessageRecord{}, &SendError{Stage: StageCompose, Err: err}
	}

	var sent models.Siblings

	if sent.Media, err = n.gw.SendMedia(ctx, n.chatID, sticker); err != nil {
		return models.MessageRecord{}, &SendError{Stage: StageMedia, Sent: sent, Err: err}
	}

	if sent.Location, err = n.gw.SendLocation(ctx, n.chatID, r.Latitude, r.Longitude); err != nil {
		return models.MessageRecord{}, &SendError{Stage: StageLocation, Sent: sent, Err: err}
	}

	msg, err := n.gw.SendMessage(ctx, n.chatID, text, gateway.ModeHTML, n.renderer.Keyboard())
	if err != nil {
		return models.MessageRecord{}, &SendError{Stage: StageText, Sent: sent, Err: err}
	}
	sent.Text = msg.ID

	rec := models.MessageRecord{
		ID:       msg.ID,
		ChatID:   n.chatID,
		GymID:    r.GymID,
		Text:     msg.Text,
		Spans:    msg.Spans,
		Siblings: sent,
	}
	n.messages.Put(rec)

	n.logger.Info("Raid notification sent",
		zap.String("gym_id", r.GymID),
		zap.Int("pokemon_id", r.PokemonID),
		zap.Int("level", r.Level),
		zap.Int("message_id", msg.ID),
	)
	return rec, nil
}
