package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teleraid/internal/gateway/gatewaytest"
	"teleraid/internal/message_store"
	"teleraid/internal/models"
	"teleraid/internal/names"
	"teleraid/internal/notifier"
	"teleraid/internal/queue"
	"teleraid/internal/raid_store"
)

const chatID int64 = -100

var t0 = time.Unix(1_700_000_000, 0).UTC()

type harness struct {
	s        *Scheduler
	gw       *gatewaytest.Fake
	raids    *raid_store.Store
	messages *message_store.Store
	events   *queue.Queue[models.Envelope]
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gw:       &gatewaytest.Fake{},
		raids:    raid_store.New(),
		messages: message_store.New(),
		events:   queue.New[models.Envelope](),
		clock:    t0,
	}
	tables := names.New("en",
		map[int]string{150: "Mewtwo", 243: "Raikou"},
		map[int]string{1: "Confusion", 2: "Psychic"},
		nil,
		map[int]string{150: "s150", 243: "s243"},
	)
	n := notifier.New(h.gw, tables, h.messages, chatID, 0, zap.NewNop())
	h.s = New(h.events, h.raids, h.messages, n, h.gw, raid_store.NewFilter([]int{5}, []int{150, 243}), zap.NewNop())
	h.s.now = func() time.Time { return h.clock }
	return h
}

func raidEnvelope(gym string, pokemon, level int, start, end time.Time) models.Envelope {
	msg := fmt.Sprintf(`{"gym_id":%q,"pokemon_id":%d,"level":%d,"move_1":1,"move_2":2,"start":%d,"end":%d,"latitude":52.5,"longitude":13.4}`,
		gym, pokemon, level, start.Unix(), end.Unix())
	return models.Envelope{Type: models.EventTypeRaid, Message: json.RawMessage(msg), DeliveryID: "d-" + gym}
}

func TestDueRaidIsNotifiedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clock = t0.Add(time.Second)
	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0, t0.Add(30*time.Minute)))

	assert.Equal(t, []string{"media", "location", "message"}, h.gw.SentKinds())
	raid, ok := h.raids.Get("G1")
	require.True(t, ok)
	assert.True(t, raid.NotifiedBattle)

	snap := h.messages.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "G1", snap[0].GymID)
	assert.Equal(t, 0, snap[0].Poll.Yes)
	assert.Equal(t, 0, snap[0].Poll.No)

	// A duplicate and an unrelated event trigger further passes.
	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0, t0.Add(30*time.Minute)))
	h.s.Handle(ctx, models.Envelope{Type: "weather"})
	assert.Len(t, h.gw.SentKinds(), 3)
	assert.Equal(t, 1, h.raids.Len())
}

func TestRaidBeforeStartWaitsForLaterEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0.Add(time.Minute), t0.Add(time.Hour)))
	assert.Empty(t, h.gw.SentKinds())

	h.clock = t0.Add(2 * time.Minute)
	h.s.Handle(ctx, models.Envelope{Type: "pokemon"})
	assert.Len(t, h.gw.SentKinds(), 3)
}

func TestFilteredRaidIsTrackedButNotNotified(t *testing.T) {
	h := newHarness(t)
	h.clock = t0.Add(time.Second)
	h.s.Handle(context.Background(), raidEnvelope("G1", 150, 3, t0, t0.Add(time.Hour)))

	assert.Equal(t, 1, h.raids.Len())
	assert.Empty(t, h.gw.SentKinds())
}

func TestMalformedAndEggEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.s.Handle(ctx, models.Envelope{Type: models.EventTypeRaid, Message: json.RawMessage(`{"gym_id":"G1"}`)})
	h.s.Handle(ctx, raidEnvelope("G2", 0, 5, t0, t0.Add(time.Hour)))

	assert.Equal(t, 0, h.raids.Len())
	assert.Empty(t, h.gw.SentKinds())
}

func TestFailedNotificationStaysEligible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.MessageErr = errors.New("down")
	h.clock = t0.Add(time.Second)

	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0, t0.Add(time.Hour)))
	raid, _ := h.raids.Get("G1")
	assert.False(t, raid.NotifiedBattle)
	assert.Equal(t, 0, h.messages.Len())
	assert.Equal(t, []string{"media", "location"}, h.gw.SentKinds())

	h.gw.MessageErr = nil
	h.s.Handle(ctx, models.Envelope{Type: "pokemon"})
	raid, _ = h.raids.Get("G1")
	assert.True(t, raid.NotifiedBattle)
	assert.Equal(t, 1, h.messages.Len())
}

func TestExpiryDeletesAllSiblingsOnceEvenOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	end := t0.Add(30 * time.Minute)

	h.clock = t0.Add(time.Second)
	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0, end))
	rec := h.messages.Snapshot()[0]
	ids := rec.Siblings.IDs()
	require.Len(t, ids, 3)

	h.gw.DeleteErr = map[int]error{ids[1]: errors.New("gone already")}

	h.clock = end
	h.s.Handle(ctx, models.Envelope{Type: "pokemon"})
	assert.Empty(t, h.gw.DeletedIDs(), "raid is kept while now == end")

	h.clock = end.Add(time.Second)
	h.s.Handle(ctx, models.Envelope{Type: "pokemon"})
	assert.ElementsMatch(t, ids, h.gw.DeletedIDs())
	assert.Equal(t, 0, h.raids.Len())
	assert.Equal(t, 0, h.messages.Len())

	for _, d := range h.gw.Deletes {
		assert.Equal(t, chatID, d.ChatID)
	}

	// Later passes and a stale duplicate change nothing.
	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0, end))
	assert.Len(t, h.gw.DeletedIDs(), 3)
	assert.Equal(t, 0, h.raids.Len())
}

func TestVotesAfterExpiryAreIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	end := t0.Add(30 * time.Minute)

	h.clock = t0.Add(time.Second)
	h.s.Handle(ctx, raidEnvelope("G1", 150, 5, t0, end))
	id := h.messages.Snapshot()[0].ID

	h.clock = end.Add(time.Second)
	h.s.Handle(ctx, models.Envelope{Type: "pokemon"})

	_, err := h.messages.Vote(id, models.Vote{UserID: 1, Choice: models.ChoiceYes}, func() models.MessageRecord {
		return models.MessageRecord{}
	})
	assert.ErrorIs(t, err, message_store.ErrNotFound)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()

	h.clock = t0.Add(time.Second)
	h.events.Push(raidEnvelope("G1", 150, 5, t0, t0.Add(time.Hour)))
	require.Eventually(t, func() bool { return h.messages.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
