// Package poll renders the attendance poll: the yes/no keyboard and the
// roster appended below a raid message.
package poll

import (
	"fmt"
	"html"
	"strings"
	"text/template"
	"unicode/utf8"

	"teleraid/internal/gateway"
	"teleraid/internal/models"
	"teleraid/internal/richtext"
)

// Translator localizes fixed labels.
type Translator interface {
	Translate(word string) string
}

const (
	yesIcon = "👍"
	noIcon  = "👎"
)

var rosterTmpl = template.Must(template.New("roster").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`{{.Base}}

<b>{{.YesLabel}}</b>
{{join .Yes "\n"}}

<b>{{.NoLabel}}</b>
{{join .No "\n"}}`))

type rosterView struct {
	Base     string
	YesLabel string
	NoLabel  string
	Yes      []string
	No       []string
}

// Renderer builds poll text and keyboards with localized labels.
type Renderer struct {
	yes string
	no  string
}

// NewRenderer returns a Renderer using tr for the Yes/No labels.
func NewRenderer(tr Translator) *Renderer {
	return &Renderer{yes: tr.Translate("Yes"), no: tr.Translate("No")}
}

// Keyboard returns the two-button control without counts.
func (r *Renderer) Keyboard() gateway.Keyboard {
	return gateway.Keyboard{
		{Text: yesIcon + " " + r.yes, Data: string(models.ChoiceYes)},
		{Text: noIcon + " " + r.no, Data: string(models.ChoiceNo)},
	}
}

// CountedKeyboard returns the two-button control with tallies in the labels.
func (r *Renderer) CountedKeyboard(p models.Poll) gateway.Keyboard {
	return gateway.Keyboard{
		{Text: fmt.Sprintf("%s %s (%d)", yesIcon, r.yes, p.Yes), Data: string(models.ChoiceYes)},
		{Text: fmt.Sprintf("%s %s (%d)", noIcon, r.no, p.No), Data: string(models.ChoiceNo)},
	}
}

// Render returns the HTML text for rec: its base formatted text followed
// by the roster. It never reads a previous render.
func (r *Renderer) Render(rec models.MessageRecord) (string, error) {
	view := rosterView{
		Base:     richtext.ReconstructHTML(rec.Text, richtext.Normalize(rec.Spans, richtext.HTMLMarkers)),
		YesLabel: html.EscapeString(r.yes),
		NoLabel:  html.EscapeString(r.no),
		Yes:      escapeAll(rec.Poll.Names(models.ChoiceYes)),
		No:       escapeAll(rec.Poll.Names(models.ChoiceNo)),
	}

	var b strings.Builder
	if err := rosterTmpl.Execute(&b, view); err != nil {
		return "", fmt.Errorf("failed to render roster: %w", err)
	}
	return b.String(), nil
}

// Fingerprint identifies a render so an unchanged one is not re-sent.
func Fingerprint(text string, p models.Poll) string {
	return fmt.Sprintf("%d/%d\x00%s", p.Yes, p.No, text)
}

// TrimRoster removes a roster left in text by an earlier render, clipping
// spans to the remaining text. It is used once, when a record is seeded from
// a message this process did not send.
func (r *Renderer) TrimRoster(text string, spans []models.Span) (string, []models.Span) {
	i := strings.Index(text, "\n\n"+r.yes+"\n")
	if i < 0 {
		return text, spans
	}
	base := text[:i]
	return base, richtext.Clip(spans, utf8.RuneCountInString(base))
}

func escapeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = html.EscapeString(n)
	}
	return out
}
