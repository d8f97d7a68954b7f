// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"teleraid/internal/gateway"
	"teleraid/internal/models"
)

// Sent records one outbound send.
type Sent struct {
	Kind     string // media, location or message
	ChatID   int64
	ID       int
	MediaRef string
	Lat, Lon float64
	Text     string
	Keyboard gateway.Keyboard
}

// Edit records one EditMessage call.
type Edit struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  gateway.Keyboard
}

// Delete records one DeleteMessage call.
type Delete struct {
	ChatID    int64
	MessageID int
}

// Fake is a scriptable gateway. Zero value is ready to use; exported error
// fields inject failures.
type Fake struct {
	mu sync.Mutex

	nextID int

	Sent    []Sent
	Edits   []Edit
	Deletes []Delete
	Offsets []int

	// Feed holds updates served by PollUpdates (those with ID >= offset).
	Feed []gateway.Update

	MediaErr    error
	LocationErr error
	MessageErr  error
	// EditErr, when set, decides the result of each edit.
	EditErr func(messageID int) error
	// DeleteErr maps message ids to the error their deletion returns.
	DeleteErr map[int]error
	// PollErrs are returned by successive PollUpdates calls before the feed is served.
	PollErrs []error
}

func (f *Fake) id() int {
	f.nextID++
	return f.nextID
}

func (f *Fake) SendMedia(_ context.Context, chatID int64, mediaRef string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MediaErr != nil {
		return 0, f.MediaErr
	}
	id := f.id()
	f.Sent = append(f.Sent, Sent{Kind: "media", ChatID: chatID, ID: id, MediaRef: mediaRef})
	return id, nil
}

func (f *Fake) SendLocation(_ context.Context, chatID int64, lat, lon float64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LocationErr != nil {
		return 0, f.LocationErr
	}
	id := f.id()
	f.Sent = append(f.Sent, Sent{Kind: "location", ChatID: chatID, ID: id, Lat: lat, Lon: lon})
	return id, nil
}

func (f *Fake) SendMessage(_ context.Context, chatID int64, text string, mode gateway.ParseMode, kb gateway.Keyboard) (gateway.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MessageErr != nil {
		return gateway.SentMessage{}, f.MessageErr
	}
	id := f.id()
	f.Sent = append(f.Sent, Sent{Kind: "message", ChatID: chatID, ID: id, Text: text, Keyboard: kb})

	plain, spans := text, []models.Span(nil)
	if mode == gateway.ModeHTML {
		plain, spans = ParseHTML(text)
	}
	return gateway.SentMessage{ID: id, Text: plain, Spans: spans}, nil
}

func (f *Fake) EditMessage(_ context.Context, chatID int64, messageID int, text string, _ gateway.ParseMode, kb gateway.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		if err := f.EditErr(messageID); err != nil {
			return err
		}
	}
	f.Edits = append(f.Edits, Edit{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes = append(f.Deletes, Delete{ChatID: chatID, MessageID: messageID})
	return f.DeleteErr[messageID]
}

func (f *Fake) PollUpdates(_ context.Context, offset int) ([]gateway.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Offsets = append(f.Offsets, offset)
	if len(f.PollErrs) > 0 {
		err := f.PollErrs[0]
		f.PollErrs = f.PollErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	var out []gateway.Update
	for _, u := range f.Feed {
		if u.ID >= offset {
			out = append(out, u)
		}
	}
	return out, nil
}

// Push appends updates to the feed.
func (f *Fake) Push(updates ...gateway.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Feed = append(f.Feed, updates...)
}

// EditCount returns the number of successful edits so far.
func (f *Fake) EditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Edits)
}

// LastEdit returns the most recent successful edit.
func (f *Fake) LastEdit() (Edit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Edits) == 0 {
		return Edit{}, false
	}
	return f.Edits[len(f.Edits)-1], true
}

// DeletedIDs returns the ids passed to DeleteMessage, in call order.
func (f *Fake) DeletedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.Deletes))
	for _, d := range f.Deletes {
		ids = append(ids, d.MessageID)
	}
	return ids
}

// SentKinds returns the kinds of all sends, in call order.
func (f *Fake) SentKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.Sent))
	for _, s := range f.Sent {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

var tagKinds = map[string]models.SpanKind{"b": models.SpanBold, "i": models.SpanItalic}

// ParseHTML turns the <b>/<i> subset of HTML into plain text and spans the
// way the chat service reports a sent message.
func ParseHTML(s string) (string, []models.Span) {
	var (
		plain strings.Builder
		spans []models.Span
		open  = map[string]int{}
		pos   int
	)
	for len(s) > 0 {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			pos += writeText(&plain, s)
			break
		}
		pos += writeText(&plain, s[:lt])
		gt := strings.IndexByte(s[lt:], '>')
		if gt < 0 {
			pos += writeText(&plain, s[lt:])
			break
		}
		tag := s[lt+1 : lt+gt]
		s = s[lt+gt+1:]

		name := strings.TrimPrefix(tag, "/")
		kind, ok := tagKinds[name]
		if !ok {
			continue
		}
		if strings.HasPrefix(tag, "/") {
			if start, ok := open[name]; ok {
				spans = append(spans, models.Span{Kind: kind, Offset: start, Length: pos - start})
				delete(open, name)
			}
			continue
		}
		open[name] = pos
	}
	return plain.String(), spans
}

func writeText(b *strings.Builder, s string) int {
	t := html.UnescapeString(s)
	b.WriteString(t)
	return utf8.RuneCountInString(t)
}

// VoteUpdate builds an update carrying a vote callback.
func VoteUpdate(id int, userID int64, name string, choice models.Choice, chatID int64, messageID int) gateway.Update {
	return gateway.Update{ID: id, Callback: &gateway.Callback{
		UserID:      userID,
		DisplayName: name,
		Data:        string(choice),
		ChatID:      chatID,
		MessageID:   messageID,
		MessageText: fmt.Sprintf("message %d", messageID),
	}}
}
