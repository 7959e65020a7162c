package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/Ericks2008/cocapi20250719/internal/constants"
	"github.com/Ericks2008/cocapi20250719/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type CWLService struct {
	resolver Resolver
	reader   SnapshotReader
	logger   zerolog.Logger
}

func NewCWLService(resolver Resolver, reader SnapshotReader, logger zerolog.Logger) *CWLService {
	return &CWLService{
		resolver: resolver,
		reader:   reader,
		logger:   logger,
	}
}

// List returns the clan snapshot with the seasons of the most recent CWL
// groups on record attached as CWLlist.
func (s *CWLService) List(ctx context.Context, tag string) (any, int, error) {
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

	seasons := []any{}
	rows, err := s.reader.Recent(ctx, domain.KindCWLGroup, cleanTag(tag), constants.CWLSeasonListLimit)
	if err != nil {
		return nil, 0, domain.Internal("failed to read CWL groups", err)
	}
	for _, row := range rows {
		group, derr := decodeMap(row.Payload)
		if derr != nil {
			s.logger.Warn().Str("tag", tag).Err(derr).Msg("cwl list: error decoding group payload")
			continue
		}
		if season := strField(group, "season"); season != "" {
			seasons = append(seasons, season)
		}
	}
	clan["CWLlist"] = seasons
	return clan, http.StatusOK, nil
}

// SeasonData returns the CWL group payload for a season (latest on record
// when season is empty), with the clan snapshot attached under "name".
// Absent data comes back as a 500 with a null body.
func (s *CWLService) SeasonData(ctx context.Context, tag, season string) (any, int, error) {
	group, status, err := s.groupData(ctx, tag, season)
	if err != nil {
		return nil, 0, err
	}
	if group == nil {
		return nil, status, nil
	}
	return group, status, nil
}

// WarByTag resolves one CWL war through the orchestrator.
func (s *CWLService) WarByTag(ctx context.Context, warTag, season string) (any, int, error) {
	raw, status, err := s.resolver.ResolveLeagueWar(ctx, cleanTag(warTag), season)
	if err != nil {
		return nil, 0, err
	}
	return json.RawMessage(raw), status, nil
}

// Summary builds the per-clan season summary: a roster per clan in the
// group, each member's per-round attack record, derived map positions with
// a stable total order, and per-member aggregate attack stats.
func (s *CWLService) Summary(ctx context.Context, tag, season string) (any, int, error) {
	cwl, status, err := s.groupData(ctx, tag, season)
	if err != nil {
		return nil, 0, err
	}
	if status != http.StatusOK || cwl == nil {
		if cwl != nil {
			s.logger.Error().Str("tag", tag).Str("season", season).Msg("failed to get base CWL data for summary")
			return cwl, status, nil
		}
		return nil, status, nil
	}
	if _, hasError := cwl["error"]; hasError {
		return cwl, status, nil
	}
	rounds := listField(cwl, "rounds")
	if rounds == nil {
		return cwl, status, nil
	}

	type warRef struct {
		day    int
		warTag string
	}
	var refs []warRef
	initialAttack := map[string]any{}
	for i, entry := range rounds {
		round, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		day := i + 1
		round["day"] = day
		initialAttack[strconv.Itoa(day)] = map[string]any{}
		for _, wt := range listField(round, "warTags") {
			warTag, _ := wt.(string)
			if warTag == "" || warTag == "#0" { // dummy tags pad unplayed rounds
				continue
			}
			refs = append(refs, warRef{day: day, warTag: warTag})
		}
	}

	clanList := map[string]any{}
	memberOrder := map[string][]string{}
	for _, entry := range listField(cwl, "clans") {
		clan, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		clanTag := strField(clan, "tag")
		memberlist := map[string]any{}
		var order []string
		for _, memberEntry := range listField(clan, "members") {
			member, ok := memberEntry.(map[string]any)
			if !ok {
				continue
			}
			memberTag := strField(member, "tag")
			copied := deepCopy(member)
			copied["attack"] = deepCopy(initialAttack)
			memberlist[memberTag] = copied
			order = append(order, memberTag)
		}
		clanList[clanTag] = map[string]any{
			"name":       strField(clan, "name"),
			"memberlist": memberlist,
		}
		memberOrder[clanTag] = order
	}

	// Resolve each round's wars; redundant refetches across requests are
	// idempotent key-scoped replacements, so bounded parallelism is safe.
	groupSeason := strField(cwl, "season")
	warData := make([]map[string]any, len(refs))
	warStatus := make([]int, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.CWLWarFetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			raw, st, rerr := s.resolver.ResolveLeagueWar(gctx, cleanTag(ref.warTag), groupSeason)
			if rerr != nil {
				s.logger.Warn().Str("war_tag", ref.warTag).Str("season", groupSeason).Err(rerr).
					Msg("cwl summary: failed to resolve war")
				warStatus[i] = http.StatusInternalServerError
				return nil
			}
			warStatus[i] = st
			if st == http.StatusOK {
				if decoded, derr := decodeMap(raw); derr == nil {
					warData[i] = decoded
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, ref := range refs {
		if warStatus[i] != http.StatusOK || warData[i] == nil {
			s.logger.Warn().Str("war_tag", ref.warTag).Str("season", groupSeason).Int("status", warStatus[i]).
				Msg("cwl summary: war data unavailable")
			continue
		}
		dayKey := strconv.Itoa(ref.day)
		s.applyWarSide(clanList, mapField(warData[i], "clan"), dayKey, ref.warTag)
		s.applyWarSide(clanList, mapField(warData[i], "opponent"), dayKey, ref.warTag)
	}

	// Derive each member's map position from whichever round reports it;
	// members with none get positions past the roster end, in encounter
	// order, so the sequence is a total order.
	for clanTag, entry := range clanList {
		clan := entry.(map[string]any)
		memberlist := mapField(clan, "memberlist")
		memberseq := map[int]string{}
		lastPosition := len(memberlist) + 1
		for _, memberTag := range memberOrder[clanTag] {
			member, ok := memberlist[memberTag].(map[string]any)
			if !ok {
				continue
			}
			position := 0
			for _, attackEntry := range mapField(member, "attack") {
				if attack, ok := attackEntry.(map[string]any); ok {
					if p := int(numField(attack, "mapPosition")); p > position {
						position = p
					}
				}
			}
			if position == 0 {
				position = lastPosition
				lastPosition++
			}
			member["mapPosition"] = position
			memberseq[position] = memberTag
		}
		positions := make([]int, 0, len(memberseq))
		for p := range memberseq {
			positions = append(positions, p)
		}
		sort.Ints(positions)
		sorted := make([]any, 0, len(positions))
		for _, p := range positions {
			sorted = append(sorted, memberseq[p])
		}
		clan["sortedMemberSeq"] = sorted
	}

	ownTag := "#" + cleanTag(tag)
	own, ok := clanList[ownTag].(map[string]any)
	if !ok {
		return nil, 0, domain.Internal("clan not present in CWL group", nil)
	}
	summary := deepCopy(own)
	summary["tag"] = ownTag
	for _, memberEntry := range mapField(summary, "memberlist") {
		member, ok := memberEntry.(map[string]any)
		if !ok {
			continue
		}
		var totalStar, totalPercentage float64
		attackCount := 0
		for _, attackEntry := range mapField(member, "attack") {
			round, ok := attackEntry.(map[string]any)
			if !ok {
				continue
			}
			attacks := listField(round, "attacks")
			if len(attacks) == 0 {
				continue
			}
			first, ok := attacks[0].(map[string]any)
			if !ok {
				continue
			}
			attackCount++
			totalStar += numField(first, "stars")
			totalPercentage += numField(first, "destructionPercentage")
		}
		member["attackcount"] = attackCount
		member["totalstar"] = totalStar
		member["totalpercentage"] = round2(totalPercentage)
		if attackCount == 0 {
			member["averagestar"] = 0.0
			member["averagepercentage"] = 0.0
		} else {
			member["averagestar"] = round2(totalStar / float64(attackCount))
			member["averagepercentage"] = round2(totalPercentage / float64(attackCount))
		}
	}

	cwl["clanlist"] = clanList
	cwl["clansummary"] = summary
	return cwl, http.StatusOK, nil
}

func (s *CWLService) applyWarSide(clanList map[string]any, side map[string]any, dayKey, warTag string) {
	if side == nil {
		return
	}
	clanTag := strField(side, "tag")
	clan, ok := clanList[clanTag].(map[string]any)
	if !ok {
		return
	}
	memberlist := mapField(clan, "memberlist")
	for _, memberEntry := range listField(side, "members") {
		member, ok := memberEntry.(map[string]any)
		if !ok {
			continue
		}
		memberTag := strField(member, "tag")
		target, ok := memberlist[memberTag].(map[string]any)
		if !ok {
			s.logger.Warn().Str("member_tag", memberTag).Str("war_tag", warTag).Str("clan_tag", clanTag).
				Msg("cwl summary: member found in war but not in group roster")
			continue
		}
		mapField(target, "attack")[dayKey] = deepCopy(member)
	}
}

// groupData loads the group payload for a season; status is 200 only when
// the group carries a state and the clan snapshot could be attached under
// "name", which is what existing clients expect.
func (s *CWLService) groupData(ctx context.Context, tag, season string) (map[string]any, int, error) {
	raw, status, err := s.resolver.ResolveLeagueGroup(ctx, tag, season)
	if err != nil {
		return nil, 0, err
	}
	if raw == nil {
		s.logger.Warn().Str("tag", tag).Str("season", season).Msg("no CWL group data")
		return nil, http.StatusInternalServerError, nil
	}
	group, derr := decodeMap(raw)
	if derr != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed CWL group payload", derr)
	}
	if status != http.StatusOK {
		return group, status, nil
	}

	status = http.StatusInternalServerError
	if _, hasState := group["state"]; hasState {
		clanSnap, serr := s.reader.Latest(ctx, domain.KindClan, cleanTag(tag))
		if serr != nil {
			return nil, 0, domain.Internal("failed to read clan snapshot", serr)
		}
		if clanSnap != nil {
			if clanData, cerr := decodeMap(clanSnap.Payload); cerr == nil {
				group["name"] = clanData
				status = http.StatusOK
			}
		} else {
			s.logger.Warn().Str("tag", tag).Msg("cwl season data: no clan data")
		}
	}
	return group, status, nil
}
