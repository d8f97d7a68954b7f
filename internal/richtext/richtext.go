// Package richtext rebuilds marked-up text from plain text and formatting
// spans, the shape in which chat services echo sent messages back.
package richtext

import (
	"html"
	"sort"
	"strings"

	"teleraid/internal/models"
)

// Marker is the pair of strings wrapping a span of one kind.
type Marker struct {
	Open  string
	Close string
}

// HTMLMarkers is the marker table for Telegram's HTML parse mode.
var HTMLMarkers = map[models.SpanKind]Marker{
	models.SpanBold:   {Open: "<b>", Close: "</b>"},
	models.SpanItalic: {Open: "<i>", Close: "</i>"},
}

// Reconstruct inserts the markers of each span into text.
//
// Spans must be sorted by offset and must not overlap (see Normalize).
// Offsets and lengths count runes of text. Spans of a kind missing from
// markers are skipped. The result depends only on the arguments.
func Reconstruct(text string, spans []models.Span, markers map[models.SpanKind]Marker) string {
	return reconstruct(text, spans, markers, nil)
}

// ReconstructHTML is Reconstruct with HTMLMarkers, escaping the text between
// markers so the result is safe to send in HTML parse mode.
func ReconstructHTML(text string, spans []models.Span) string {
	return reconstruct(text, spans, HTMLMarkers, html.EscapeString)
}

// reconstruct works on a token slice: one token per rune of text, plus one
// token per inserted marker. Positions are therefore plain token indexes and
// escaping a rune never shifts a later insertion point.
func reconstruct(text string, spans []models.Span, markers map[models.SpanKind]Marker, escape func(string) string) string {
	runes := []rune(text)
	tokens := make([]string, 0, len(runes)+2*len(spans))
	for _, r := range runes {
		s := string(r)
		if escape != nil {
			s = escape(s)
		}
		tokens = append(tokens, s)
	}

	c := 0
	for _, sp := range spans {
		m, ok := markers[sp.Kind]
		if !ok || sp.Length <= 0 || sp.Offset < 0 || sp.Offset+sp.Length > len(runes) {
			continue
		}
		tokens = insert(tokens, c+sp.Offset+sp.Length, m.Close)
		tokens = insert(tokens, c+sp.Offset, m.Open)
		c += 2
	}

	return strings.Join(tokens, "")
}

func insert(tokens []string, at int, s string) []string {
	tokens = append(tokens, "")
	copy(tokens[at+1:], tokens[at:])
	tokens[at] = s
	return tokens
}

// Normalize returns spans sorted by offset with unknown kinds, empty spans
// and spans overlapping an earlier kept span removed.
func Normalize(spans []models.Span, markers map[models.SpanKind]Marker) []models.Span {
	out := make([]models.Span, 0, len(spans))
	for _, sp := range spans {
		if _, ok := markers[sp.Kind]; ok && sp.Length > 0 && sp.Offset >= 0 {
			out = append(out, sp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })

	kept := out[:0]
	end := 0
	for _, sp := range out {
		if len(kept) > 0 && sp.Offset < end {
			continue
		}
		kept = append(kept, sp)
		end = sp.Offset + sp.Length
	}
	return kept
}

// Clip drops spans that start at or after limit and shortens spans that
// cross it. limit is a rune offset.
func Clip(spans []models.Span, limit int) []models.Span {
	var out []models.Span
	for _, sp := range spans {
		if sp.Offset >= limit {
			continue
		}
		if sp.Offset+sp.Length > limit {
			sp.Length = limit - sp.Offset
		}
		out = append(out, sp)
	}
	return out
}
