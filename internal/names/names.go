// Package names resolves pokemon, move and sticker ids to display values.
//
// Tables are read once by Load and are read-only afterwards, so a *Tables
// can be shared freely between goroutines.
package names

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLookupMiss is returned when an id has no entry in the loaded tables.
var ErrLookupMiss = errors.New("lookup miss")

type entry struct {
	Name string `json:"name"`
}

// Tables holds the loaded lookup data.
type Tables struct {
	locale     string
	pokemon    map[int]string
	moves      map[int]string
	dictionary map[string]string
	stickers   map[int]string
}

// Load reads static/pokemon.json, static/moves_<locale>.json and, for a
// locale other than "en", static/locales/<locale>.json. Moves fall back to
// moves_en.json when no localized file exists.
func Load(dir, locale string, stickers map[int]string) (*Tables, error) {
	if locale == "" {
		locale = "en"
	}

	t := &Tables{locale: locale, stickers: stickers}

	var err error
	if t.pokemon, err = loadEntries(filepath.Join(dir, "pokemon.json")); err != nil {
		return nil, err
	}

	movesPath := filepath.Join(dir, fmt.Sprintf("moves_%s.json", locale))
	if _, statErr := os.Stat(movesPath); errors.Is(statErr, os.ErrNotExist) {
		movesPath = filepath.Join(dir, "moves_en.json")
	}
	if t.moves, err = loadEntries(movesPath); err != nil {
		return nil, err
	}

	if locale != "en" {
		data, err := os.ReadFile(filepath.Join(dir, "locales", locale+".json"))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %q: %w", locale, err)
		}
		if err := json.Unmarshal(data, &t.dictionary); err != nil {
			return nil, fmt.Errorf("failed to decode locale %q: %w", locale, err)
		}
	}

	return t, nil
}

// New builds tables from in-memory maps.
func New(locale string, pokemon, moves map[int]string, dictionary map[string]string, stickers map[int]string) *Tables {
	if locale == "" {
		locale = "en"
	}
	return &Tables{locale: locale, pokemon: pokemon, moves: moves, dictionary: dictionary, stickers: stickers}
}

func loadEntries(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	out := make(map[int]string, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q in %s: %w", k, path, err)
		}
		out[id] = v.Name
	}
	return out, nil
}

// Locale returns the configured locale code.
func (t *Tables) Locale() string { return t.locale }

// Translate returns the localized form of word, or word itself.
func (t *Tables) Translate(word string) string {
	if v, ok := t.dictionary[word]; ok {
		return v
	}
	return word
}

// PokemonName returns the localized pokemon name.
func (t *Tables) PokemonName(id int) (string, error) {
	name, ok := t.pokemon[id]
	if !ok {
		return "", fmt.Errorf("%w: pokemon %d", ErrLookupMiss, id)
	}
	return t.Translate(name), nil
}

// MoveName returns the move name from the locale's move table.
func (t *Tables) MoveName(id int) (string, error) {
	name, ok := t.moves[id]
	if !ok {
		return "", fmt.Errorf("%w: move %d", ErrLookupMiss, id)
	}
	return name, nil
}

// Sticker returns the sticker file id shown for a pokemon.
func (t *Tables) Sticker(pokemonID int) (string, error) {
	ref, ok := t.stickers[pokemonID]
	if !ok || ref == "" {
		return "", fmt.Errorf("%w: sticker for pokemon %d", ErrLookupMiss, pokemonID)
	}
	return ref, nil
}
