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

func newClanService(resolver Resolver, reader SnapshotReader, now time.Time) *ClanService {
	s := NewClanService(resolver, reader, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestClanDetailsMergesMemberStats(t *testing.T) {
	resolver := newFakeResolver()
	resolver.clans["C1"] = `{"tag":"#C1","name":"Clan","memberList":[{"tag":"#P1","name":"A"},{"tag":"#P2","name":"B"}]}`

	reader := newFakeReader()
	reader.putLatest(domain.KindPlayer, "P1", `{"attackWins":12,"townHallLevel":14,"warPreference":"in"}`)

	result, status, err := newClanService(resolver, reader, time.Now()).Details(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	clan := result.(map[string]any)
	members := clan["memberList"].([]any)
	require.Len(t, members, 2)

	withData := members[0].(map[string]any)
	assert.Equal(t, 12.0, withData["attackWins"])
	assert.Equal(t, 14.0, withData["townHallLevel"])
	assert.Equal(t, "in", withData["warPreference"])

	// Members without a snapshot keep the sentinel values.
	withoutData := members[1].(map[string]any)
	assert.Equal(t, 9999, withoutData["attackWins"])
	assert.Equal(t, 9999, withoutData["townHallLevel"])
	assert.Equal(t, "", withoutData["warPreference"])
}

func TestClanDetailsUpstreamErrorPassthrough(t *testing.T) {
	result, status, err := newClanService(newFakeResolver(), newFakeReader(), time.Now()).
		Details(context.Background(), "NOPE")

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"reason":"notFound"}`, string(result.(json.RawMessage)))
}

func TestClanTroopsIndexesMemberItems(t *testing.T) {
	resolver := newFakeResolver()
	resolver.clans["C1"] = `{"tag":"#C1","memberList":[{"tag":"#P1","name":"A"}]}`

	reader := newFakeReader()
	reader.putLatest(domain.KindPlayer, "P1",
		`{"townHallLevel":13,
		  "troops":[{"name":"Barbarian","level":9,"village":"home"},{"name":"Raged Barbarian","level":12,"village":"builderBase"}],
		  "heroes":[{"name":"Barbarian King","level":40,"village":"home"}],
		  "heroEquipment":[{"name":"Barbarian Puppet","level":10}],
		  "spells":[{"name":"Lightning Spell","level":9}]}`)

	result, status, err := newClanService(resolver, reader, time.Now()).Troops(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	clan := result.(map[string]any)
	member := clan["memberList"].([]any)[0].(map[string]any)
	detail := member["detail"].(map[string]any)

	troops := detail["troopslist"].(map[string]any)
	assert.Contains(t, troops, "Barbarian")
	assert.NotContains(t, troops, "Raged Barbarian") // home village only

	assert.Contains(t, detail["heroeslist"].(map[string]any), "Barbarian King")
	assert.Contains(t, detail["heroEquipmentlist"].(map[string]any), "Barbarian Puppet")
	assert.Contains(t, detail["spellslist"].(map[string]any), "Lightning Spell")
	assert.Equal(t, 13.0, detail["townHallLevel"])
}

func TestClanSuperTroopsGroupsBoostersByTroop(t *testing.T) {
	resolver := newFakeResolver()
	resolver.clans["C1"] = `{"tag":"#C1","memberList":[{"tag":"#P1"},{"tag":"#P2"},{"tag":"#P3"}]}`

	reader := newFakeReader()
	reader.putLatest(domain.KindPlayer, "P1",
		`{"name":"A","troops":[
		   {"name":"Super Barbarian","village":"home","superTroopIsActive":true},
		   {"name":"Archer","village":"home"}]}`)
	reader.putLatest(domain.KindPlayer, "P2",
		`{"name":"B","troops":[
		   {"name":"Super Barbarian","village":"home","superTroopIsActive":true},
		   {"name":"Super Wizard","village":"home","superTroopIsActive":true}]}`)
	reader.putLatest(domain.KindPlayer, "P3", `{"name":"C","troops":[{"name":"Barbarian","village":"home"}]}`)

	result, status, err := newClanService(resolver, reader, time.Now()).SuperTroops(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	clan := result.(map[string]any)
	active := clan["activeSuperTroops"].(map[string]any)
	assert.Equal(t, []any{"A", "B"}, active["Super Barbarian"])
	assert.Equal(t, []any{"B"}, active["Super Wizard"])
	assert.NotContains(t, active, "Barbarian")
}

func TestClanProgressSeries(t *testing.T) {
	now := time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)
	resolver := newFakeResolver()
	resolver.clans["C1"] = `{"tag":"#C1","memberList":[{"tag":"#P1","name":"A"}]}`

	reader := newFakeReader()
	reader.addRecent(domain.KindPlayer, "P1",
		`{"attackWins":10,"achievements":[{"name":"Gold Grab","value":1000}]}`,
		time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC))
	reader.addRecent(domain.KindPlayer, "P1",
		`{"attackWins":7,"achievements":[{"name":"Gold Grab","value":900}]}`,
		time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC))

	result, status, err := newClanService(resolver, reader, now).Progress(context.Background(), "C1", "")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	clan := result.(map[string]any)

	header := clan["clanprogress"].(map[string]any)
	assert.Equal(t, "attackWins", header["name"])
	assert.Len(t, header["history"].([]string), constants.ClanProgressWindow)

	member := clan["memberList"].([]any)[0].(map[string]any)
	series := member["clanprogress"].(map[string]any)
	assert.Equal(t, 10.0, series["2025-08-30"])
	assert.Equal(t, 3.0, series["2025-08-29"])
}

func TestClanProgressAchievementMetric(t *testing.T) {
	now := time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)
	resolver := newFakeResolver()
	resolver.clans["C1"] = `{"tag":"#C1","memberList":[{"tag":"#P1","name":"A"}]}`

	reader := newFakeReader()
	reader.addRecent(domain.KindPlayer, "P1",
		`{"attackWins":10,"achievements":[{"name":"Gold Grab","value":1000}]}`,
		time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC))
	reader.addRecent(domain.KindPlayer, "P1",
		`{"attackWins":7,"achievements":[{"name":"Gold Grab","value":900}]}`,
		time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC))

	result, _, err := newClanService(resolver, reader, now).Progress(context.Background(), "C1", "Gold Grab")

	require.NoError(t, err)
	clan := result.(map[string]any)
	assert.Equal(t, "Gold Grab", clan["clanprogress"].(map[string]any)["name"])

	member := clan["memberList"].([]any)[0].(map[string]any)
	series := member["clanprogress"].(map[string]any)
	assert.Equal(t, 1000.0, series["2025-08-30"])
	assert.Equal(t, 100.0, series["2025-08-29"])
}

func TestClanCurrentWarAttachesWarLogVisibility(t *testing.T) {
	resolver := newFakeResolver()
	resolver.warBody = `{"state":"inWar","clan":{"tag":"#C1"}}`
	resolver.warStatus = http.StatusOK

	reader := newFakeReader()
	reader.putLatest(domain.KindClan, "C1", `{"tag":"#C1","isWarLogPublic":true}`)

	result, status, err := newClanService(resolver, reader, time.Now()).CurrentWar(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	war := result.(map[string]any)
	assert.Equal(t, "inWar", war["state"])
	assert.Equal(t, true, war["isWarLogPublic"])
}

func TestClanCurrentWarUpstreamErrorGetsErrorKey(t *testing.T) {
	resolver := newFakeResolver()
	resolver.warBody = `{"reason":"accessDenied"}`
	resolver.warStatus = http.StatusForbidden

	reader := newFakeReader()
	reader.putLatest(domain.KindClan, "C1", `{"tag":"#C1","isWarLogPublic":false}`)

	result, status, err := newClanService(resolver, reader, time.Now()).CurrentWar(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	war := result.(map[string]any)
	assert.NotEmpty(t, war["error"])
	assert.Equal(t, false, war["isWarLogPublic"])
}

func TestClanWarLogAttachesArchivedDetails(t *testing.T) {
	resolver := newFakeResolver()
	resolver.warLogBody = `{"items":[
		{"result":"win","endTime":"20250820T064422.000Z","opponent":{"name":"Beta"}},
		{"result":"lose","endTime":"20250810T064422.000Z","opponent":{}},
		{"result":"win","endTime":"20250801T064422.000Z","opponent":{"name":"Gamma"}}]}`

	reader := newFakeReader()
	reader.putSub(domain.KindWar, "C1", "20250820", `{"state":"warEnded","teamSize":15}`)

	result, status, err := newClanService(resolver, reader, time.Now()).WarLog(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	warLog := result.(map[string]any)

	// CWL league wars have no opponent name and are skipped.
	printed := warLog["print"].([]any)
	require.Len(t, printed, 2)

	details := warLog["warlog"].(map[string]any)
	archived := details["20250820"].(map[string]any)
	assert.Equal(t, "warEnded", archived["state"])
	missing := details["20250801"].(map[string]any)
	assert.Equal(t, "noData", missing["state"])
}

func TestClanWarDetail(t *testing.T) {
	reader := newFakeReader()
	reader.putSub(domain.KindWar, "C1", "20250820", `{"state":"warEnded","teamSize":15}`)
	reader.putLatest(domain.KindClan, "C1", `{"tag":"#C1","isWarLogPublic":true}`)

	svc := newClanService(newFakeResolver(), reader, time.Now())

	result, status, err := svc.WarDetail(context.Background(), "C1", "20250820")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	war := result.(map[string]any)
	assert.Equal(t, "warEnded", war["state"])
	assert.Equal(t, true, war["isWarLogPublic"])

	result, status, err = svc.WarDetail(context.Background(), "C1", "20250101")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	war = result.(map[string]any)
	assert.Equal(t, "noData", war["state"])
	assert.Equal(t, true, war["isWarLogPublic"])
}
