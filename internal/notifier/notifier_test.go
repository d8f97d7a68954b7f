package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teleraid/internal/gateway/gatewaytest"
	"teleraid/internal/message_store"
	"teleraid/internal/models"
	"teleraid/internal/names"
)

const chatID int64 = -100123

func tables() *names.Tables {
	return names.New("en",
		map[int]string{150: "Mewtwo"},
		map[int]string{10: "Psycho Cut", 20: "Shadow Ball"},
		nil,
		map[int]string{150: "sticker-150"},
	)
}

func mewtwo() models.Raid {
	start := time.Date(2023, 11, 14, 22, 0, 0, 0, time.UTC)
	return models.Raid{
		GymID:     "G1",
		PokemonID: 150,
		Level:     5,
		Move1:     10,
		Move2:     20,
		Start:     start,
		End:       start.Add(45 * time.Minute),
		Latitude:  52.52,
		Longitude: 13.40,
	}
}

func TestNotifySendsThreeMessagesInOrder(t *testing.T) {
	gw := &gatewaytest.Fake{}
	store := message_store.New()
	n := New(gw, tables(), store, chatID, 0, zap.NewNop())

	rec, err := n.Notify(context.Background(), mewtwo())
	require.NoError(t, err)

	assert.Equal(t, []string{"media", "location", "message"}, gw.SentKinds())
	assert.Equal(t, "sticker-150", gw.Sent[0].MediaRef)
	assert.Equal(t, 52.52, gw.Sent[1].Lat)
	assert.Equal(t, 13.40, gw.Sent[1].Lon)

	text := gw.Sent[2].Text
	assert.Equal(t, "<b>Raid - Level 5 - Mewtwo</b>\nPsycho Cut / Shadow Ball\nRaid ends at <b>22:45</b>.", text)
	require.Len(t, gw.Sent[2].Keyboard, 2)
	assert.Equal(t, "y", gw.Sent[2].Keyboard[0].Data)
	assert.Equal(t, "n", gw.Sent[2].Keyboard[1].Data)

	assert.Equal(t, models.Siblings{Media: 1, Location: 2, Text: 3}, rec.Siblings)
	assert.Equal(t, 3, rec.ID)
	assert.Equal(t, chatID, rec.ChatID)
	assert.Equal(t, "G1", rec.GymID)
	assert.Equal(t, "Raid - Level 5 - Mewtwo\nPsycho Cut / Shadow Ball\nRaid ends at 22:45.", rec.Text)
	assert.Len(t, rec.Spans, 2)

	stored, ok := store.Get(3)
	require.True(t, ok)
	assert.Equal(t, rec.Siblings, stored.Siblings)
	assert.Equal(t, 0, stored.Poll.Yes)
}

func TestComposeAppliesTimezone(t *testing.T) {
	n := New(&gatewaytest.Fake{}, tables(), message_store.New(), chatID, 2, zap.NewNop())
	text, err := n.Compose(mewtwo())
	require.NoError(t, err)
	assert.Contains(t, text, "<b>00:45</b>")
}

func TestComposeLocalizesLabels(t *testing.T) {
	tr := names.New("de",
		map[int]string{150: "Mewtwo"},
		map[int]string{10: "Psychoklinge", 20: "Spukball"},
		map[string]string{"Mewtwo": "Mewtu", "Level": "Stufe", "Raid ends at": "Raid endet um"},
		map[int]string{150: "s"},
	)
	n := New(&gatewaytest.Fake{}, tr, message_store.New(), chatID, 0, zap.NewNop())
	text, err := n.Compose(mewtwo())
	require.NoError(t, err)
	assert.Equal(t, "<b>Raid - Stufe 5 - Mewtu</b>\nPsychoklinge / Spukball\nRaid endet um <b>22:45</b>.", text)
}

func TestLookupMissSendsNothing(t *testing.T) {
	gw := &gatewaytest.Fake{}
	store := message_store.New()
	n := New(gw, tables(), store, chatID, 0, zap.NewNop())

	r := mewtwo()
	r.Move2 = 999
	_, err := n.Notify(context.Background(), r)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageCompose, se.Stage)
	assert.ErrorIs(t, err, names.ErrLookupMiss)
	assert.Empty(t, gw.SentKinds())
	assert.Equal(t, 0, store.Len())
}

func TestMissingStickerIsLookupMiss(t *testing.T) {
	gw := &gatewaytest.Fake{}
	tr := names.New("en", map[int]string{150: "Mewtwo"}, map[int]string{10: "a", 20: "b"}, nil, nil)
	n := New(gw, tr, message_store.New(), chatID, 0, zap.NewNop())

	_, err := n.Notify(context.Background(), mewtwo())
	assert.ErrorIs(t, err, names.ErrLookupMiss)
	assert.Empty(t, gw.SentKinds())
}

func TestPartialFailureReportsSentMessages(t *testing.T) {
	boom := errors.New("boom")
	gw := &gatewaytest.Fake{MessageErr: boom}
	store := message_store.New()
	n := New(gw, tables(), store, chatID, 0, zap.NewNop())

	_, err := n.Notify(context.Background(), mewtwo())

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageText, se.Stage)
	assert.Equal(t, models.Siblings{Media: 1, Location: 2}, se.Sent)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len(), "no record without a text message")
}

func TestLocationFailureStopsBeforeText(t *testing.T) {
	gw := &gatewaytest.Fake{LocationErr: errors.New("down")}
	n := New(gw, tables(), message_store.New(), chatID, 0, zap.NewNop())

	_, err := n.Notify(context.Background(), mewtwo())

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLocation, se.Stage)
	assert.Equal(t, []string{"media"}, gw.SentKinds())
}
