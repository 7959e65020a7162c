// Package service implements the join/enrichment operations over resolved
// snapshots: progress series, upgrade timelines, clan member enrichment and
// the CWL season summary.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/domain"
)

const dateLayout = "2006-01-02"

// progressItems is the fixed set of cumulative player counters tracked by
// the progress series; any achievement name extends it dynamically.
var progressItems = []string{"warStars", "attackWins", "donations", "donationsReceived"}

// SnapshotReader is the read-only store surface the join engine uses. The
// join engine never fetches; it only reads snapshots already resolved.
type SnapshotReader interface {
	Latest(ctx context.Context, kind domain.Kind, key string) (*domain.Snapshot, error)
	LatestForSubKey(ctx context.Context, kind domain.Kind, key, subKey string) (*domain.Snapshot, error)
	History(ctx context.Context, kind domain.Kind, key string, limit int, before time.Time) ([]domain.Snapshot, error)
	Recent(ctx context.Context, kind domain.Kind, key string, limit int) ([]domain.Snapshot, error)
	LatestByKeys(ctx context.Context, kind domain.Kind, keys []string) (map[string]domain.Snapshot, error)
}

// Resolver is the cache-or-fetch surface handlers reach entities through.
type Resolver interface {
	ResolvePlayer(ctx context.Context, tag string) (json.RawMessage, int, error)
	ResolveClan(ctx context.Context, tag string) (json.RawMessage, int, error)
	ResolveCurrentWar(ctx context.Context, tag string) (json.RawMessage, int, error)
	ResolveWarLog(ctx context.Context, tag string) (json.RawMessage, int, error)
	ResolveLeagueGroup(ctx context.Context, tag, season string) (json.RawMessage, int, error)
	ResolveLeagueWar(ctx context.Context, warTag, season string) (json.RawMessage, int, error)
}
