package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventTypeRaid is the webhook type carrying raid data.
const EventTypeRaid = "raid"

// ErrMalformedEvent is returned for webhook payloads that lack required fields
// or cannot be decoded.
var ErrMalformedEvent = errors.New("malformed event")

// Envelope is a single webhook delivery as it sits in the event queue.
// Message is decoded lazily by the consumer so unknown types cost nothing.
type Envelope struct {
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message"`
	DeliveryID string          `json:"-"`
	ReceivedAt time.Time       `json:"-"`
}

// RaidEvent mirrors the "message" object of a raid webhook. Pointer fields
// distinguish absent keys from zero values.
type RaidEvent struct {
	GymID     *string  `json:"gym_id"`
	PokemonID *int     `json:"pokemon_id"`
	Level     *int     `json:"level"`
	Move1     *int     `json:"move_1"`
	Move2     *int     `json:"move_2"`
	Start     *int64   `json:"start"`
	End       *int64   `json:"end"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// DecodeRaid parses the envelope's message as a raid. The returned bool is
// false for eggs (pokemon_id null or zero), which carry no boss yet and are
// skipped without error.
func DecodeRaid(env Envelope) (Raid, bool, error) {
	if len(env.Message) == 0 || string(env.Message) == "null" {
		return Raid{}, false, fmt.Errorf("%w: missing message", ErrMalformedEvent)
	}

	var ev RaidEvent
	if err := json.Unmarshal(env.Message, &ev); err != nil {
		return Raid{}, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var missing []string
	if ev.GymID == nil || *ev.GymID == "" {
		missing = append(missing, "gym_id")
	}
	if ev.Level == nil {
		missing = append(missing, "level")
	}
	if ev.Start == nil {
		missing = append(missing, "start")
	}
	if ev.End == nil {
		missing = append(missing, "end")
	}
	if ev.Latitude == nil {
		missing = append(missing, "latitude")
	}
	if ev.Longitude == nil {
		missing = append(missing, "longitude")
	}
	if len(missing) > 0 {
		return Raid{}, false, fmt.Errorf("%w: missing %s", ErrMalformedEvent, strings.Join(missing, ", "))
	}

	if ev.PokemonID == nil || *ev.PokemonID == 0 {
		return Raid{}, false, nil
	}
	if ev.Move1 == nil || ev.Move2 == nil {
		return Raid{}, false, fmt.Errorf("%w: missing move_1/move_2", ErrMalformedEvent)
	}

	return Raid{
		GymID:     *ev.GymID,
		PokemonID: *ev.PokemonID,
		Level:     *ev.Level,
		Move1:     *ev.Move1,
		Move2:     *ev.Move2,
		Start:     time.Unix(*ev.Start, 0).UTC(),
		End:       time.Unix(*ev.End, 0).UTC(),
		Latitude:  *ev.Latitude,
		Longitude: *ev.Longitude,
	}, true, nil
}
