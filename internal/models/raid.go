package models

import "time"

// Raid is a time-boxed boss fight at a gym, keyed by gym id.
type Raid struct {
	GymID          string    `json:"gym_id"`
	PokemonID      int       `json:"pokemon_id"`
	Level          int       `json:"level"`
	Move1          int       `json:"move_1"`
	Move2          int       `json:"move_2"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	NotifiedBattle bool      `json:"notified_battle"`
}

// Expired reports whether the raid has ended at now.
func (r Raid) Expired(now time.Time) bool {
	return now.After(r.End)
}

// Started reports whether the battle phase has begun at now.
func (r Raid) Started(now time.Time) bool {
	return now.After(r.Start)
}
