package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRaid(t *testing.T) {
	env := Envelope{Type: EventTypeRaid, Message: json.RawMessage(`{
		"gym_id": "G1", "pokemon_id": 150, "level": 5, "move_1": 1, "move_2": 2,
		"start": 1000, "end": 2800, "latitude": 1.0, "longitude": 2.0}`)}

	raid, ok, err := DecodeRaid(env)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "G1", raid.GymID)
	assert.Equal(t, 150, raid.PokemonID)
	assert.Equal(t, int64(2800), raid.End.Unix())
	assert.False(t, raid.NotifiedBattle)
}

func TestDecodeRaidMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no message", ``},
		{"null message", `null`},
		{"not an object", `[1,2]`},
		{"missing gym", `{"pokemon_id": 1, "level": 1, "move_1": 1, "move_2": 2, "start": 1, "end": 2, "latitude": 0, "longitude": 0}`},
		{"missing end", `{"gym_id": "G", "pokemon_id": 1, "level": 1, "move_1": 1, "move_2": 2, "start": 1, "latitude": 0, "longitude": 0}`},
		{"missing moves", `{"gym_id": "G", "pokemon_id": 1, "level": 1, "start": 1, "end": 2, "latitude": 0, "longitude": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeRaid(Envelope{Type: EventTypeRaid, Message: json.RawMessage(tt.body)})
			assert.True(t, errors.Is(err, ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestDecodeRaidEggIsSkipped(t *testing.T) {
	env := Envelope{Type: EventTypeRaid, Message: json.RawMessage(`{
		"gym_id": "G1", "pokemon_id": null, "level": 5,
		"start": 1000, "end": 2800, "latitude": 1.0, "longitude": 2.0}`)}

	_, ok, err := DecodeRaid(env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPollApplyOverwritesAndRecounts(t *testing.T) {
	var p Poll
	p.Apply(Vote{UserID: 7, DisplayName: "x", Choice: ChoiceYes})
	p.Apply(Vote{UserID: 7, DisplayName: "x", Choice: ChoiceYes})
	p.Recount()
	assert.Equal(t, 1, p.Yes)
	assert.Equal(t, 0, p.No)

	p.Apply(Vote{UserID: 8, DisplayName: "y", Choice: ChoiceNo})
	p.Apply(Vote{UserID: 7, DisplayName: "x", Choice: ChoiceNo})
	p.Recount()
	assert.Equal(t, 0, p.Yes)
	assert.Equal(t, 2, p.No)
	assert.Equal(t, []string{"x", "y"}, p.Names(ChoiceNo))
}

func TestCloneIsDeep(t *testing.T) {
	rec := MessageRecord{ID: 1, Spans: []Span{{Kind: SpanBold, Length: 1}}}
	rec.Poll.Apply(Vote{UserID: 1, Choice: ChoiceYes})

	cp := rec.Clone()
	cp.Poll.Apply(Vote{UserID: 2, Choice: ChoiceNo})
	cp.Spans[0].Length = 5

	assert.Len(t, rec.Poll.Users, 1)
	assert.Equal(t, 1, rec.Spans[0].Length)
}

func TestSiblingIDs(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Siblings{Media: 1, Location: 2, Text: 3}.IDs())
	assert.Equal(t, []int{3}, Siblings{Text: 3}.IDs())
}
