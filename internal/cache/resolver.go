// Package cache ties the snapshot store, the freshness policy and the
// upstream fetcher together: read the latest snapshot, refetch when stale,
// persist successful fetches and hand back the resolved payload.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/domain"
	"github.com/Ericks2008/cocapi20250719/internal/freshness"
	"github.com/rs/zerolog"
)

// endTimeLayout matches the CoC API timestamp format (20240115T064422).
const endTimeLayout = "20060102T150405"

// Fetcher is the upstream API surface the resolver needs.
type Fetcher interface {
	FetchPlayer(ctx context.Context, tag string) ([]byte, int)
	FetchClan(ctx context.Context, tag string) ([]byte, int)
	FetchCurrentWar(ctx context.Context, tag string) ([]byte, int)
	FetchWarLog(ctx context.Context, tag string) ([]byte, int)
	FetchLeagueGroup(ctx context.Context, tag string) ([]byte, int)
	FetchLeagueWar(ctx context.Context, warTag string) ([]byte, int)
}

// Store is the snapshot persistence surface the resolver needs.
type Store interface {
	Append(ctx context.Context, kind domain.Kind, key, subKey string, payload []byte, at time.Time) error
	Replace(ctx context.Context, kind domain.Kind, key, subKey string, payload []byte, at time.Time) error
	Latest(ctx context.Context, kind domain.Kind, key string) (*domain.Snapshot, error)
	LatestForSubKey(ctx context.Context, kind domain.Kind, key, subKey string) (*domain.Snapshot, error)
	LatestSeason(ctx context.Context, kind domain.Kind, key string) (*domain.Snapshot, error)
}

type Resolver struct {
	store   Store
	fetcher Fetcher
	logger  zerolog.Logger
	now     func() time.Time
}

func NewResolver(store Store, fetcher Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// ResolvePlayer returns the player's cached payload when fresh, otherwise
// fetches, appends the new snapshot on success and returns it.
func (r *Resolver) ResolvePlayer(ctx context.Context, tag string) (json.RawMessage, int, error) {
	return r.resolveAppend(ctx, domain.KindPlayer, tag, r.fetcher.FetchPlayer)
}

// ResolveClan is ResolvePlayer for clan snapshots.
func (r *Resolver) ResolveClan(ctx context.Context, tag string) (json.RawMessage, int, error) {
	return r.resolveAppend(ctx, domain.KindClan, tag, r.fetcher.FetchClan)
}

func (r *Resolver) resolveAppend(ctx context.Context, kind domain.Kind, tag string, fetch func(context.Context, string) ([]byte, int)) (json.RawMessage, int, error) {
	if tag == "" {
		return nil, 0, domain.MissingParameter(string(kind) + " tag")
	}

	snap, err := r.store.Latest(ctx, kind, tag)
	if err != nil {
		return nil, 0, domain.Internal("failed to read cached snapshot", err)
	}
	if !freshness.IsStale(snap, kind, r.now()) {
		return snap.Payload, http.StatusOK, nil
	}

	body, status := fetch(ctx, tag)
	if status != http.StatusOK {
		return body, status, nil
	}
	if !json.Valid(body) {
		return nil, 0, domain.UpstreamDataCorrupt(fmt.Sprintf("malformed %s payload for %s", kind, tag), nil)
	}
	if err := r.store.Append(ctx, kind, tag, "", body, r.now()); err != nil {
		return nil, 0, domain.Internal("failed to persist snapshot", err)
	}
	return body, http.StatusOK, nil
}

// ResolveCurrentWar serves the clan's war snapshot. Fetched wars are keyed
// by end date; a war whose end time has passed is archived permanently with
// the end time as its capture time, so the archive survives as the current
// war pointer moves on.
func (r *Resolver) ResolveCurrentWar(ctx context.Context, tag string) (json.RawMessage, int, error) {
	if tag == "" {
		return nil, 0, domain.MissingParameter("clan tag")
	}

	snap, err := r.store.Latest(ctx, domain.KindWar, tag)
	if err != nil {
		return nil, 0, domain.Internal("failed to read cached war snapshot", err)
	}
	if !freshness.IsStale(snap, domain.KindWar, r.now()) {
		return snap.Payload, http.StatusOK, nil
	}

	body, status := r.fetcher.FetchCurrentWar(ctx, tag)
	if status != http.StatusOK {
		return body, status, nil
	}

	var war struct {
		State   string `json:"state"`
		EndTime string `json:"endTime"`
	}
	if err := json.Unmarshal(body, &war); err != nil {
		return nil, 0, domain.UpstreamDataCorrupt(fmt.Sprintf("malformed war payload for %s", tag), err)
	}

	now := r.now()
	switch {
	case len(war.EndTime) >= 15:
		endDate := war.EndTime[:8]
		endAt, perr := time.Parse(endTimeLayout, war.EndTime[:15])
		capturedAt := now
		if perr == nil && now.After(endAt) {
			// Terminal war: archive under its end time.
			capturedAt = endAt
		}
		if err := r.store.Replace(ctx, domain.KindWar, tag, endDate, body, capturedAt); err != nil {
			return nil, 0, domain.Internal("failed to persist war snapshot", err)
		}
	default:
		if err := r.store.Replace(ctx, domain.KindWar, tag, war.State, body, now); err != nil {
			return nil, 0, domain.Internal("failed to persist war snapshot", err)
		}
	}

	// The upstream payload carries the escaped tag; put the plain one back
	// for the response.
	body, err = withClanTag(body, tag)
	if err != nil {
		return nil, 0, domain.UpstreamDataCorrupt(fmt.Sprintf("malformed war payload for %s", tag), err)
	}
	return body, http.StatusOK, nil
}

// ResolveWarLog serves the clan's war log with a 12 hour window.
func (r *Resolver) ResolveWarLog(ctx context.Context, tag string) (json.RawMessage, int, error) {
	if tag == "" {
		return nil, 0, domain.MissingParameter("clan tag")
	}

	snap, err := r.store.Latest(ctx, domain.KindClanWarLog, tag)
	if err != nil {
		return nil, 0, domain.Internal("failed to read cached war log", err)
	}
	if !freshness.IsStale(snap, domain.KindClanWarLog, r.now()) {
		return snap.Payload, http.StatusOK, nil
	}

	body, status := r.fetcher.FetchWarLog(ctx, tag)
	if status != http.StatusOK {
		return body, status, nil
	}
	if !json.Valid(body) {
		return nil, 0, domain.UpstreamDataCorrupt(fmt.Sprintf("malformed war log payload for %s", tag), nil)
	}
	if err := r.store.Replace(ctx, domain.KindClanWarLog, tag, "", body, r.now()); err != nil {
		return nil, 0, domain.Internal("failed to persist war log", err)
	}
	return body, http.StatusOK, nil
}

// ResolveLeagueGroup serves the CWL group for a season (latest on record
// when season is empty). A seasoned group payload is archived permanently;
// upstream is consulted only when nothing is on record and the request is
// for the current (or unspecified) season.
func (r *Resolver) ResolveLeagueGroup(ctx context.Context, tag, season string) (json.RawMessage, int, error) {
	if tag == "" {
		return nil, 0, domain.MissingParameter("clan tag")
	}

	var snap *domain.Snapshot
	var err error
	if season != "" {
		snap, err = r.store.LatestForSubKey(ctx, domain.KindCWLGroup, tag, season)
	} else {
		snap, err = r.store.LatestSeason(ctx, domain.KindCWLGroup, tag)
	}
	if err != nil {
		return nil, 0, domain.Internal("failed to read cached CWL group", err)
	}
	if !freshness.IsStale(snap, domain.KindCWLGroup, r.now()) {
		return snap.Payload, http.StatusOK, nil
	}

	if season != "" && season != r.currentSeason() {
		// Historical seasons are only ever served from the archive.
		return nil, http.StatusInternalServerError, nil
	}

	body, status := r.fetcher.FetchLeagueGroup(ctx, tag)
	if status != http.StatusOK {
		return body, status, nil
	}

	var group struct {
		Season string `json:"season"`
	}
	if err := json.Unmarshal(body, &group); err != nil {
		return nil, 0, domain.UpstreamDataCorrupt(fmt.Sprintf("malformed CWL group payload for %s", tag), err)
	}
	if group.Season != "" {
		if err := r.store.Replace(ctx, domain.KindCWLGroup, tag, group.Season, body, r.now()); err != nil {
			return nil, 0, domain.Internal("failed to persist CWL group", err)
		}
	}
	if season != "" && group.Season != season {
		return nil, http.StatusInternalServerError, nil
	}
	return body, http.StatusOK, nil
}

// ResolveLeagueWar serves one CWL war. Terminal wars are cached forever;
// in-flight wars refresh on a 5 minute window, and only wars of the current
// season are ever fetched.
func (r *Resolver) ResolveLeagueWar(ctx context.Context, warTag, season string) (json.RawMessage, int, error) {
	if warTag == "" {
		return nil, 0, domain.MissingParameter("war tag")
	}
	if season == "" {
		return nil, 0, domain.MissingParameter("season")
	}

	snap, err := r.store.LatestForSubKey(ctx, domain.KindCWLWar, warTag, season)
	if err != nil {
		return nil, 0, domain.Internal("failed to read cached CWL war", err)
	}
	if !freshness.IsStale(snap, domain.KindCWLWar, r.now()) {
		return snap.Payload, http.StatusOK, nil
	}

	if season != r.currentSeason() {
		return errorBody(fmt.Sprintf("Not current season %s %s", season, warTag)), http.StatusInternalServerError, nil
	}

	body, status := r.fetcher.FetchLeagueWar(ctx, warTag)
	if status != http.StatusOK {
		return body, status, nil
	}
	if !json.Valid(body) {
		return nil, 0, domain.UpstreamDataCorrupt(fmt.Sprintf("malformed CWL war payload for %s", warTag), nil)
	}
	if err := r.store.Replace(ctx, domain.KindCWLWar, warTag, season, body, r.now()); err != nil {
		return nil, 0, domain.Internal("failed to persist CWL war", err)
	}
	r.logger.Info().Str("war_tag", warTag).Str("season", season).Msg("CWL war snapshot updated")
	return body, http.StatusOK, nil
}

func (r *Resolver) currentSeason() string {
	return r.now().Format("2006-01")
}

func withClanTag(body []byte, tag string) ([]byte, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if clan, ok := payload["clan"].(map[string]any); ok {
		clan["tag"] = "#" + tag
		return json.Marshal(payload)
	}
	return body, nil
}

func errorBody(msg string) []byte {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return body
}
