package names

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadGerman(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pokemon.json"), `{"150": {"name": "Mewtwo"}, "1": {"name": "Bulbasaur"}}`)
	writeFile(t, filepath.Join(dir, "moves_de.json"), `{"1": {"name": "Donnerschock"}}`)
	writeFile(t, filepath.Join(dir, "locales", "de.json"), `{"Mewtwo": "Mewtu", "Yes": "Ja"}`)

	tables, err := Load(dir, "de", map[int]string{150: "STICKER"})
	require.NoError(t, err)

	name, err := tables.PokemonName(150)
	require.NoError(t, err)
	assert.Equal(t, "Mewtu", name)

	name, err = tables.PokemonName(1)
	require.NoError(t, err)
	assert.Equal(t, "Bulbasaur", name)

	move, err := tables.MoveName(1)
	require.NoError(t, err)
	assert.Equal(t, "Donnerschock", move)

	assert.Equal(t, "Ja", tables.Translate("Yes"))
	assert.Equal(t, "No", tables.Translate("No"))

	ref, err := tables.Sticker(150)
	require.NoError(t, err)
	assert.Equal(t, "STICKER", ref)
}

func TestLoadFallsBackToEnglishMoves(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pokemon.json"), `{"150": {"name": "Mewtwo"}}`)
	writeFile(t, filepath.Join(dir, "moves_en.json"), `{"1": {"name": "Thunder Shock"}}`)
	writeFile(t, filepath.Join(dir, "locales", "fr.json"), `{}`)

	tables, err := Load(dir, "fr", nil)
	require.NoError(t, err)
	move, err := tables.MoveName(1)
	require.NoError(t, err)
	assert.Equal(t, "Thunder Shock", move)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir(), "en", nil)
	assert.Error(t, err)
}

func TestLookupMiss(t *testing.T) {
	tables := New("en", map[int]string{}, map[int]string{}, nil, nil)

	_, err := tables.PokemonName(9)
	assert.True(t, errors.Is(err, ErrLookupMiss))
	_, err = tables.MoveName(9)
	assert.True(t, errors.Is(err, ErrLookupMiss))
	_, err = tables.Sticker(9)
	assert.True(t, errors.Is(err, ErrLookupMiss))
}
