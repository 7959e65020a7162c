package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/constants"
	"github.com/Ericks2008/cocapi20250719/internal/domain"
	"github.com/rs/zerolog"
)

type ClanService struct {
	resolver Resolver
	reader   SnapshotReader
	logger   zerolog.Logger
	now      func() time.Time
}

func NewClanService(resolver Resolver, reader SnapshotReader, logger zerolog.Logger) *ClanService {
	return &ClanService{
		resolver: resolver,
		reader:   reader,
		logger:   logger,
		now:      time.Now,
	}
}

// Details returns the clan snapshot with each member's latest player stats
// merged in. Members without a player snapshot get sentinel values.
func (s *ClanService) Details(ctx context.Context, tag string) (any, int, error) {
	clanData, status, err := s.resolveClanMap(ctx, tag)
	if err != nil || status != http.StatusOK {
		return clanData, status, err
	}
	clan := clanData.(map[string]any)

	for _, entry := range listField(clan, "memberList") {
		member, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		member["attackWins"] = 9999
		member["townHallLevel"] = 9999
		member["warPreference"] = ""

		memberTag := cleanTag(strField(member, "tag"))
		snap, err := s.reader.Latest(ctx, domain.KindPlayer, memberTag)
		if err != nil {
			return nil, 0, domain.Internal("failed to read member snapshot", err)
		}
		if snap == nil {
			s.logger.Warn().Str("member_tag", memberTag).Msg("clan details: member has no data")
			continue
		}
		playerData, err := decodeMap(snap.Payload)
		if err != nil {
			s.logger.Warn().Str("member_tag", memberTag).Err(err).Msg("clan details: member data json decode error")
			continue
		}
		member["attackWins"] = numField(playerData, "attackWins")
		member["townHallLevel"] = numField(playerData, "townHallLevel")
		member["warPreference"] = strField(playerData, "warPreference")
	}
	return clan, http.StatusOK, nil
}

// Troops returns the clan snapshot with per-member indexed views of
// troops, heroes, hero equipment and spells, resolved with one batch query
// over the members' latest snapshots.
func (s *ClanService) Troops(ctx context.Context, tag string) (any, int, error) {
	clanData, status, err := s.resolveClanMap(ctx, tag)
	if err != nil || status != http.StatusOK {
		return clanData, status, err
	}
	clan := clanData.(map[string]any)

	members := listField(clan, "memberList")
	tags := make([]string, 0, len(members))
	for _, entry := range members {
		if member, ok := entry.(map[string]any); ok {
			tags = append(tags, cleanTag(strField(member, "tag")))
		}
	}
	if len(tags) == 0 {
		s.logger.Info().Str("tag", tag).Msg("clan troops: clan has no members")
		return clan, http.StatusOK, nil
	}

	snapshots, err := s.reader.LatestByKeys(ctx, domain.KindPlayer, tags)
	if err != nil {
		return nil, 0, domain.Internal("failed to read member snapshots", err)
	}

	for _, entry := range members {
		member, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		memberTag := cleanTag(strField(member, "tag"))
		snap, ok := snapshots[memberTag]
		if !ok {
			s.logger.Info().Str("member_tag", memberTag).Msg("clan troops: player data not found")
			continue
		}
		playerData, err := decodeMap(snap.Payload)
		if err != nil {
			s.logger.Warn().Str("member_tag", memberTag).Err(err).Msg("clan troops: skipping malformed player data")
			continue
		}
		member["detail"] = map[string]any{
			"troopslist":        indexByName(listField(playerData, "troops"), true),
			"heroeslist":        indexByName(listField(playerData, "heroes"), false),
			"heroEquipmentlist": indexByName(listField(playerData, "heroEquipment"), false),
			"spellslist":        indexByName(listField(playerData, "spells"), false),
			"townHallLevel":     playerData["townHallLevel"],
		}
	}
	return clan, http.StatusOK, nil
}

// indexByName maps item name to the full item; homeOnly restricts to the
// home village (troop lists mix both villages).
func indexByName(items []any, homeOnly bool) map[string]any {
	indexed := map[string]any{}
	for _, entry := range items {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := strField(item, "name")
		if name == "" {
			continue
		}
		if homeOnly && strField(item, "village") != "home" {
			continue
		}
		indexed[name] = item
	}
	return indexed
}

// SuperTroops returns the clan snapshot with activeSuperTroops attached:
// super troop name -> names of members currently boosting it.
func (s *ClanService) SuperTroops(ctx context.Context, tag string) (any, int, error) {
	clanData, status, err := s.resolveClanMap(ctx, tag)
	if err != nil || status != http.StatusOK {
		return clanData, status, err
	}
	clan := clanData.(map[string]any)

	active := map[string]any{}
	for _, entry := range listField(clan, "memberList") {
		member, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		memberTag := cleanTag(strField(member, "tag"))
		snap, err := s.reader.Latest(ctx, domain.KindPlayer, memberTag)
		if err != nil {
			return nil, 0, domain.Internal("failed to read member snapshot", err)
		}
		if snap == nil {
			s.logger.Info().Str("member_tag", memberTag).Msg("supertroops: player information missing")
			continue
		}
		playerData, err := decodeMap(snap.Payload)
		if err != nil {
			s.logger.Info().Str("member_tag", memberTag).Err(err).Msg("supertroops: player payload decode error")
			continue
		}
		playerName := strField(playerData, "name")
		for _, troopEntry := range listField(playerData, "troops") {
			troop, ok := troopEntry.(map[string]any)
			if !ok {
				continue
			}
			if strField(troop, "village") != "home" {
				continue
			}
			if _, boosted := troop["superTroopIsActive"]; !boosted {
				continue
			}
			name := strField(troop, "name")
			names, _ := active[name].([]any)
			active[name] = append(names, playerName)
		}
	}
	clan["activeSuperTroops"] = active
	return clan, http.StatusOK, nil
}

// Progress returns the clan snapshot with a 60-day progress series per
// member for one metric: a fixed cumulative counter or a named achievement.
func (s *ClanService) Progress(ctx context.Context, tag, achievement string) (any, int, error) {
	clanData, status, err := s.resolveClanMap(ctx, tag)
	if err != nil || status != http.StatusOK {
		return clanData, status, err
	}
	clan := clanData.(map[string]any)

	members := listField(clan, "memberList")
	if len(members) == 0 {
		return nil, 0, domain.Internal("clan has no members for progress", nil)
	}

	// The first member's achievements feed the metric picker.
	firstMember, _ := members[0].(map[string]any)
	firstTag := cleanTag(strField(firstMember, "tag"))
	snap, err := s.reader.Latest(ctx, domain.KindPlayer, firstTag)
	if err != nil {
		return nil, 0, domain.Internal("failed to read member snapshot", err)
	}
	if snap == nil {
		s.logger.Warn().Str("member_tag", firstTag).Msg("clan progress: first member has no data")
		return nil, 0, domain.Internal("no snapshot for first clan member", nil)
	}
	firstData, err := decodeMap(snap.Payload)
	if err != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed member payload", err)
	}
	clan["achievements"] = firstData["achievements"]

	metric := achievement
	if metric == "" {
		metric = "attackWins"
	}
	dates := make([]string, 0, constants.ClanProgressWindow)
	start := s.now()
	for x := 0; x < constants.ClanProgressWindow; x++ {
		dates = append(dates, start.AddDate(0, 0, -x).Format(dateLayout))
	}
	clan["clanprogress"] = map[string]any{"name": metric, "history": dates}

	fixedMetric := false
	for _, item := range progressItems {
		if item == metric {
			fixedMetric = true
			break
		}
	}

	// One extra sample seeds the first delta.
	limit := constants.ClanProgressWindow + 1
	for _, entry := range members {
		member, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		memberTag := cleanTag(strField(member, "tag"))
		rows, err := s.reader.Recent(ctx, domain.KindPlayer, memberTag, limit)
		if err != nil {
			return nil, 0, domain.Internal("failed to read member history", err)
		}

		series := map[string]any{}
		var working float64
		seen := false
		for _, row := range rows {
			rowData, err := decodeMap(row.Payload)
			if err != nil {
				s.logger.Warn().Str("member_tag", memberTag).Err(err).Msg("clan progress: skipping malformed player data")
				continue
			}
			value, found := metricValue(rowData, metric, fixedMetric)
			if !found {
				continue
			}
			date := row.CapturedAt.Format(dateLayout)
			if seen {
				series[date] = working - value
			} else {
				series[date] = value
			}
			working = value
			seen = true
		}
		member["clanprogress"] = series
	}
	return clan, http.StatusOK, nil
}

func metricValue(playerData map[string]any, metric string, fixed bool) (float64, bool) {
	if fixed {
		return numField(playerData, metric), true
	}
	for _, entry := range listField(playerData, "achievements") {
		achievement, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if strField(achievement, "name") == metric {
			return numField(achievement, "value"), true
		}
	}
	return 0, false
}

// CurrentWar resolves the clan's current war and attaches isWarLogPublic
// from the clan snapshot.
func (s *ClanService) CurrentWar(ctx context.Context, tag string) (any, int, error) {
	raw, status, err := s.resolver.ResolveCurrentWar(ctx, tag)
	if err != nil {
		return nil, 0, err
	}
	warData, derr := decodeMap(raw)
	if derr != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed war payload", derr)
	}
	if status != http.StatusOK {
		if _, hasError := warData["error"]; !hasError {
			warData["error"] = "unexpected error from fetch coc api data call"
		}
	}

	clanSnap, err := s.reader.Latest(ctx, domain.KindClan, cleanTag(tag))
	if err != nil {
		return nil, 0, domain.Internal("failed to read clan snapshot", err)
	}
	if clanSnap == nil {
		return nil, 0, domain.Internal("no clan snapshot for war detail", nil)
	}
	clanData, err := decodeMap(clanSnap.Payload)
	if err != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed cached clan payload", err)
	}
	warData["isWarLogPublic"] = clanData["isWarLogPublic"]
	return warData, status, nil
}

// WarLog resolves the clan war log and, for the first wars with a named
// opponent, attaches the archived war detail keyed by end date.
func (s *ClanService) WarLog(ctx context.Context, tag string) (any, int, error) {
	raw, status, err := s.resolver.ResolveWarLog(ctx, tag)
	if err != nil {
		return nil, 0, err
	}
	warLog, derr := decodeMap(raw)
	if derr != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed war log payload", derr)
	}

	printed := []any{}
	details := map[string]any{}
	count := 0
	for _, entry := range listField(warLog, "items") {
		if count >= constants.WarLogDetailLimit {
			break
		}
		war, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		opponent := mapField(war, "opponent")
		if opponent == nil || strField(opponent, "name") == "" {
			continue
		}
		endTime := strField(war, "endTime")
		if len(endTime) < 8 {
			continue
		}
		printed = append(printed, war)
		endDate := endTime[:8]

		snap, err := s.reader.LatestForSubKey(ctx, domain.KindWar, cleanTag(tag), endDate)
		if err != nil {
			return nil, 0, domain.Internal("failed to read archived war", err)
		}
		if snap != nil {
			detail, err := decodeMap(snap.Payload)
			if err == nil {
				details[endDate] = detail
			} else {
				details[endDate] = map[string]any{"state": "noData"}
			}
		} else {
			details[endDate] = map[string]any{"state": "noData"}
		}
		count++
	}
	warLog["print"] = printed
	warLog["warlog"] = details
	return warLog, status, nil
}

// WarDetail returns the archived war for a clan and end date, or
// {"state": "noData"} when nothing is archived.
func (s *ClanService) WarDetail(ctx context.Context, tag, date string) (any, int, error) {
	if tag == "" {
		return nil, 0, domain.MissingParameter("clan tag")
	}

	warData := map[string]any{"state": "noData"}
	snap, err := s.reader.LatestForSubKey(ctx, domain.KindWar, cleanTag(tag), date)
	if err != nil {
		return nil, 0, domain.Internal("failed to read archived war", err)
	}
	if snap != nil {
		decoded, derr := decodeMap(snap.Payload)
		if derr == nil {
			warData = decoded
		} else {
			s.logger.Error().Str("tag", tag).Str("date", date).Err(derr).Msg("war detail: json decode error")
		}
	}

	clanSnap, err := s.reader.Latest(ctx, domain.KindClan, cleanTag(tag))
	if err != nil {
		return nil, 0, domain.Internal("failed to read clan snapshot", err)
	}
	if clanSnap != nil {
		if clanData, derr := decodeMap(clanSnap.Payload); derr == nil {
			warData["isWarLogPublic"] = clanData["isWarLogPublic"]
		}
	} else {
		s.logger.Warn().Str("tag", tag).Msg("war detail: no clan snapshot")
	}
	return warData, http.StatusOK, nil
}

// resolveClanMap resolves the clan and decodes it, passing upstream
// failures through untouched.
func (s *ClanService) resolveClanMap(ctx context.Context, tag string) (any, int, error) {
	raw, status, err := s.resolver.ResolveClan(ctx, tag)
	if err != nil {
		return nil, 0, err
	}
	if status != http.StatusOK {
		return json.RawMessage(raw), status, nil
	}
	clan, derr := decodeMap(raw)
	if derr != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed cached clan payload", derr)
	}
	return clan, http.StatusOK, nil
}
