package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/constants"
	"github.com/Ericks2008/cocapi20250719/internal/domain"
	"github.com/rs/zerolog"
)

type PlayerService struct {
	resolver Resolver
	reader   SnapshotReader
	logger   zerolog.Logger
	now      func() time.Time
}

func NewPlayerService(resolver Resolver, reader SnapshotReader, logger zerolog.Logger) *PlayerService {
	return &PlayerService{
		resolver: resolver,
		reader:   reader,
		logger:   logger,
		now:      time.Now,
	}
}

// Info returns the player's snapshot at or before fromDate with the
// day-over-day progress series over the fixed window attached. fromDate is
// YYYY-MM-DD; empty means now.
func (s *PlayerService) Info(ctx context.Context, tag, fromDate string) (any, int, error) {
	raw, status, err := s.resolver.ResolvePlayer(ctx, tag)
	if err != nil {
		return nil, 0, err
	}
	if status != http.StatusOK {
		return json.RawMessage(raw), status, nil
	}

	fromStart := s.now()
	if fromDate != "" {
		day, err := time.Parse(dateLayout, fromDate)
		if err != nil {
			return nil, 0, domain.MissingParameter("from_date")
		}
		// End of the requested day, so that day's snapshot is included.
		fromStart = day.Add(24*time.Hour - time.Second)
	}

	history, err := s.reader.History(ctx, domain.KindPlayer, cleanTag(tag), constants.PlayerProgressWindow, fromStart)
	if err != nil {
		return nil, 0, domain.Internal("failed to read player history", err)
	}
	if len(history) == 0 {
		s.logger.Warn().Str("tag", tag).Msg("player info: no data")
		return nil, 0, domain.NotFound("no player data found for tag: %s", tag)
	}

	playerData, err := decodeMap(history[0].Payload)
	if err != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed cached player payload", err)
	}

	progress := map[string]any{}
	dates := make([]string, 0, constants.PlayerProgressWindow)
	for x := 0; x < constants.PlayerProgressWindow; x++ {
		dates = append(dates, fromStart.AddDate(0, 0, -x).Format(dateLayout))
	}
	progress["history"] = dates

	// Scan newest-first; the first occurrence of a metric stores its raw
	// cumulative value, every older sample stores newerValue - olderValue.
	working := map[string]float64{}
	for _, row := range history {
		rowData, err := decodeMap(row.Payload)
		if err != nil {
			s.logger.Warn().Str("tag", tag).Time("captured_at", row.CapturedAt).Err(err).
				Msg("player info: skipping malformed history row")
			continue
		}
		date := row.CapturedAt.Format(dateLayout)
		day := map[string]any{}

		for _, item := range progressItems {
			value := numField(rowData, item)
			if prev, seen := working[item]; seen {
				day[item] = prev - value
			} else {
				day[item] = value
			}
			working[item] = value
		}
		for _, entry := range listField(rowData, "achievements") {
			achievement, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name := strField(achievement, "name")
			if name == "" {
				continue
			}
			value := numField(achievement, "value")
			if prev, seen := working[name]; seen {
				day[name] = prev - value
			} else {
				day[name] = value
			}
			working[name] = value
		}
		progress[date] = day
	}

	playerData["DateRange"] = constants.PlayerProgressWindow
	playerData["playerprogress"] = progress
	return playerData, http.StatusOK, nil
}

type villageItem struct {
	Name    string `json:"name"`
	Level   int    `json:"level"`
	Village string `json:"village"`
}

type playerLevels struct {
	TownHallLevel       int           `json:"townHallLevel"`
	BuilderHallLevel    int           `json:"builderHallLevel"`
	TownHallWeaponLevel *int          `json:"townHallWeaponLevel"`
	Troops              []villageItem `json:"troops"`
	Heroes              []villageItem `json:"heroes"`
	Spells              []villageItem `json:"spells"`
}

// UpgradeEntry records every level change detected on one day, split by
// village.
type UpgradeEntry struct {
	Date        string         `json:"date"`
	Home        map[string]int `json:"home,omitempty"`
	BuilderBase map[string]int `json:"builderBase,omitempty"`
}

// ProgressData returns the player's latest snapshot with the upgrade
// timeline attached: a newest-first list of dates on which townHallLevel,
// builderHallLevel, townHallWeaponLevel or any non-Super troop/spell/hero
// changed level.
func (s *PlayerService) ProgressData(ctx context.Context, tag string) (any, int, error) {
	raw, status, err := s.resolver.ResolvePlayer(ctx, tag)
	if err != nil {
		return nil, 0, err
	}
	if status != http.StatusOK {
		return json.RawMessage(raw), status, nil
	}

	rows, err := s.reader.Recent(ctx, domain.KindPlayer, cleanTag(tag), constants.UpgradeHistoryLimit+1)
	if err != nil {
		return nil, 0, domain.Internal("failed to read player history", err)
	}
	if len(rows) == 0 {
		s.logger.Info().Str("tag", tag).Msg("player progress: no data")
		return nil, 0, domain.NotFound("no player data found for tag: %s", tag)
	}

	playerData, err := decodeMap(rows[0].Payload)
	if err != nil {
		return nil, 0, domain.UpstreamDataCorrupt("malformed cached player payload", err)
	}

	// Oldest first for the chronological scan.
	parsed := make([]playerLevels, 0, len(rows))
	parsedDates := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		var levels playerLevels
		if err := json.Unmarshal(rows[i].Payload, &levels); err != nil {
			s.logger.Warn().Str("tag", tag).Time("captured_at", rows[i].CapturedAt).Err(err).
				Msg("player progress: skipping malformed history row")
			continue
		}
		parsed = append(parsed, levels)
		parsedDates = append(parsedDates, rows[i].CapturedAt.Format(dateLayout))
	}

	entries := []UpgradeEntry{}
	if len(parsed) >= 2 {
		entries = detectUpgrades(parsed, parsedDates)
	} else {
		s.logger.Info().Str("tag", tag).Msg("player progress: not enough historical data to track progress")
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date > entries[j].Date })
	playerData["upgradeprogress"] = entries
	return playerData, http.StatusOK, nil
}

func detectUpgrades(parsed []playerLevels, dates []string) []UpgradeEntry {
	prevHome := map[string]int{"townHallLevel": parsed[0].TownHallLevel}
	prevBuilder := map[string]int{"builderHallLevel": parsed[0].BuilderHallLevel}
	if parsed[0].TownHallWeaponLevel != nil {
		prevHome["townHallWeaponLevel"] = *parsed[0].TownHallWeaponLevel
	}
	seedItems(prevHome, prevBuilder, parsed[0])

	entries := []UpgradeEntry{}
	for i := 1; i < len(parsed); i++ {
		current := parsed[i]
		home := map[string]int{}
		builder := map[string]int{}

		if current.TownHallLevel != prevHome["townHallLevel"] {
			home["townHallLevel"] = current.TownHallLevel
		}
		prevHome["townHallLevel"] = current.TownHallLevel

		if current.BuilderHallLevel != prevBuilder["builderHallLevel"] {
			builder["builderHallLevel"] = current.BuilderHallLevel
		}
		prevBuilder["builderHallLevel"] = current.BuilderHallLevel

		if current.TownHallWeaponLevel != nil {
			level := *current.TownHallWeaponLevel
			if prev, seen := prevHome["townHallWeaponLevel"]; !seen || level != prev {
				home["townHallWeaponLevel"] = level
			}
			prevHome["townHallWeaponLevel"] = level
		}

		for _, item := range allItems(current) {
			// Super troop variants track activation, not level; the
			// super-troop roster handles them.
			if item.Name == "" || hasSuperPrefix(item.Name) {
				continue
			}
			target := prevHome
			changed := home
			if item.Village == "builderBase" {
				target = prevBuilder
				changed = builder
			}
			if item.Level != target[item.Name] {
				changed[item.Name] = item.Level
			}
			target[item.Name] = item.Level
		}

		if len(home) > 0 || len(builder) > 0 {
			entry := UpgradeEntry{Date: dates[i]}
			if len(home) > 0 {
				entry.Home = home
			}
			if len(builder) > 0 {
				entry.BuilderBase = builder
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func seedItems(prevHome, prevBuilder map[string]int, levels playerLevels) {
	for _, item := range allItems(levels) {
		if item.Name == "" || hasSuperPrefix(item.Name) {
			continue
		}
		if item.Village == "builderBase" {
			prevBuilder[item.Name] = item.Level
		} else {
			prevHome[item.Name] = item.Level
		}
	}
}

func allItems(levels playerLevels) []villageItem {
	items := make([]villageItem, 0, len(levels.Spells)+len(levels.Troops)+len(levels.Heroes))
	items = append(items, levels.Spells...)
	items = append(items, levels.Troops...)
	items = append(items, levels.Heroes...)
	return items
}

func hasSuperPrefix(name string) bool {
	return strings.HasPrefix(name, "Super")
}
