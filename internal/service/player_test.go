package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/constants"
	"github.com/Ericks2008/cocapi20250719/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlayerService(resolver Resolver, reader SnapshotReader, now time.Time) *PlayerService {
	s := NewPlayerService(resolver, reader, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestPlayerInfoProgressDeltas(t *testing.T) {
	now := time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)
	resolver := newFakeResolver()
	resolver.players["P1"] = `{"tag":"#P1","name":"Hero"}`

	reader := newFakeReader()
	reader.addRecent(domain.KindPlayer, "P1",
		`{"tag":"#P1","name":"Hero","warStars":300,"attackWins":10,"donations":50,"donationsReceived":20,"achievements":[{"name":"Gold Grab","value":1000}]}`,
		time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC))
	reader.addRecent(domain.KindPlayer, "P1",
		`{"tag":"#P1","name":"Hero","warStars":290,"attackWins":7,"donations":40,"donationsReceived":20,"achievements":[{"name":"Gold Grab","value":900}]}`,
		time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC))

	result, status, err := newPlayerService(resolver, reader, now).Info(context.Background(), "P1", "")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	player := result.(map[string]any)
	assert.Equal(t, "Hero", player["name"])
	assert.Equal(t, constants.PlayerProgressWindow, player["DateRange"])

	progress := player["playerprogress"].(map[string]any)
	dates := progress["history"].([]string)
	require.Len(t, dates, constants.PlayerProgressWindow)
	assert.Equal(t, "2025-08-30", dates[0])
	assert.Equal(t, "2025-08-29", dates[1])

	// Newest sample carries raw values, older samples the delta to the
	// next newer one.
	newest := progress["2025-08-30"].(map[string]any)
	assert.Equal(t, 10.0, newest["attackWins"])
	assert.Equal(t, 300.0, newest["warStars"])
	assert.Equal(t, 1000.0, newest["Gold Grab"])

	older := progress["2025-08-29"].(map[string]any)
	assert.Equal(t, 3.0, older["attackWins"])
	assert.Equal(t, 10.0, older["warStars"])
	assert.Equal(t, 10.0, older["donations"])
	assert.Equal(t, 0.0, older["donationsReceived"])
	assert.Equal(t, 100.0, older["Gold Grab"])
}

func TestPlayerInfoFromDateWindow(t *testing.T) {
	now := time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)
	resolver := newFakeResolver()
	resolver.players["P1"] = `{"tag":"#P1"}`

	reader := newFakeReader()
	reader.addRecent(domain.KindPlayer, "P1", `{"attackWins":10}`, time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC))
	reader.addRecent(domain.KindPlayer, "P1", `{"attackWins":7}`, time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC))

	result, status, err := newPlayerService(resolver, reader, now).Info(context.Background(), "P1", "2025-08-25")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	player := result.(map[string]any)
	progress := player["playerprogress"].(map[string]any)
	_, hasNewest := progress["2025-08-30"]
	assert.False(t, hasNewest)
	assert.Equal(t, 7.0, progress["2025-08-20"].(map[string]any)["attackWins"])
}

func TestPlayerInfoBadFromDate(t *testing.T) {
	resolver := newFakeResolver()
	resolver.players["P1"] = `{"tag":"#P1"}`

	_, _, err := newPlayerService(resolver, newFakeReader(), time.Now()).Info(context.Background(), "P1", "30-08-2025")

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusBadRequest, derr.HTTPStatus())
}

func TestPlayerInfoNoHistoryIsNotFound(t *testing.T) {
	resolver := newFakeResolver()
	resolver.players["P1"] = `{"tag":"#P1"}`

	_, _, err := newPlayerService(resolver, newFakeReader(), time.Now()).Info(context.Background(), "P1", "")

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusNotFound, derr.HTTPStatus())
}

func TestPlayerInfoUpstreamErrorPassthrough(t *testing.T) {
	result, status, err := newPlayerService(newFakeResolver(), newFakeReader(), time.Now()).
		Info(context.Background(), "NOPE", "")

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"reason":"notFound"}`, string(result.(json.RawMessage)))
}

func TestPlayerProgressDataUpgradeTimeline(t *testing.T) {
	resolver := newFakeResolver()
	resolver.players["P1"] = `{"tag":"#P1"}`

	reader := newFakeReader()
	// Newest first, matching store ordering.
	reader.addRecent(domain.KindPlayer, "P1",
		`{"townHallLevel":10,"builderHallLevel":5,
		  "troops":[{"name":"Barbarian","level":9,"village":"home"},{"name":"Raged Barbarian","level":13,"village":"builderBase"},{"name":"Super Barbarian","level":10,"village":"home"}],
		  "heroes":[{"name":"Barbarian King","level":40,"village":"home"}],"spells":[]}`,
		time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC))
	reader.addRecent(domain.KindPlayer, "P1",
		`{"townHallLevel":9,"builderHallLevel":5,
		  "troops":[{"name":"Barbarian","level":9,"village":"home"},{"name":"Raged Barbarian","level":12,"village":"builderBase"},{"name":"Super Barbarian","level":9,"village":"home"}],
		  "heroes":[{"name":"Barbarian King","level":40,"village":"home"}],"spells":[]}`,
		time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC))
	reader.addRecent(domain.KindPlayer, "P1",
		`{"townHallLevel":9,"builderHallLevel":5,
		  "troops":[{"name":"Barbarian","level":8,"village":"home"},{"name":"Raged Barbarian","level":12,"village":"builderBase"},{"name":"Super Barbarian","level":8,"village":"home"}],
		  "heroes":[{"name":"Barbarian King","level":40,"village":"home"}],"spells":[]}`,
		time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC))

	result, status, err := newPlayerService(resolver, reader, time.Now()).ProgressData(context.Background(), "P1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	player := result.(map[string]any)
	entries := player["upgradeprogress"].([]UpgradeEntry)
	require.Len(t, entries, 2)

	// Newest first; Super troop level flips never count as upgrades.
	assert.Equal(t, "2025-08-30", entries[0].Date)
	assert.Equal(t, map[string]int{"townHallLevel": 10}, entries[0].Home)
	assert.Equal(t, map[string]int{"Raged Barbarian": 13}, entries[0].BuilderBase)

	assert.Equal(t, "2025-08-29", entries[1].Date)
	assert.Equal(t, map[string]int{"Barbarian": 9}, entries[1].Home)
	assert.Nil(t, entries[1].BuilderBase)
}

func TestPlayerProgressDataSingleSnapshot(t *testing.T) {
	resolver := newFakeResolver()
	resolver.players["P1"] = `{"tag":"#P1"}`

	reader := newFakeReader()
	reader.addRecent(domain.KindPlayer, "P1", `{"townHallLevel":9}`, time.Now())

	result, status, err := newPlayerService(resolver, reader, time.Now()).ProgressData(context.Background(), "P1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	player := result.(map[string]any)
	assert.Empty(t, player["upgradeprogress"].([]UpgradeEntry))
}

func TestDetectUpgradesTownHallWeapon(t *testing.T) {
	weapon2 := 2
	weapon3 := 3
	parsed := []playerLevels{
		{TownHallLevel: 13, BuilderHallLevel: 9, TownHallWeaponLevel: &weapon2},
		{TownHallLevel: 13, BuilderHallLevel: 9, TownHallWeaponLevel: &weapon3},
	}
	entries := detectUpgrades(parsed, []string{"2025-08-28", "2025-08-29"})
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-08-29", entries[0].Date)
	assert.Equal(t, map[string]int{"townHallWeaponLevel": 3}, entries[0].Home)
}
