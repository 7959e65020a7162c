package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/domain"
)

// fakeReader serves canned snapshots keyed by kind and entity key.
type fakeReader struct {
	latest map[string]*domain.Snapshot
	sub    map[string]*domain.Snapshot
	recent map[string][]domain.Snapshot // newest first
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		latest: map[string]*domain.Snapshot{},
		sub:    map[string]*domain.Snapshot{},
		recent: map[string][]domain.Snapshot{},
	}
}

func readerKey(kind domain.Kind, key string) string {
	return string(kind) + "|" + key
}

func (r *fakeReader) putLatest(kind domain.Kind, key, payload string) {
	r.latest[readerKey(kind, key)] = &domain.Snapshot{
		Kind: kind, EntityKey: key, Payload: json.RawMessage(payload), CapturedAt: time.Now(),
	}
}

func (r *fakeReader) putSub(kind domain.Kind, key, subKey, payload string) {
	r.sub[readerKey(kind, key)+"|"+subKey] = &domain.Snapshot{
		Kind: kind, EntityKey: key, SubKey: subKey, Payload: json.RawMessage(payload), CapturedAt: time.Now(),
	}
}

// addRecent appends a row; call newest first to match store ordering.
func (r *fakeReader) addRecent(kind domain.Kind, key, payload string, at time.Time) {
	k := readerKey(kind, key)
	r.recent[k] = append(r.recent[k], domain.Snapshot{
		Kind: kind, EntityKey: key, Payload: json.RawMessage(payload), CapturedAt: at,
	})
}

func (r *fakeReader) Latest(_ context.Context, kind domain.Kind, key string) (*domain.Snapshot, error) {
	if snap, ok := r.latest[readerKey(kind, key)]; ok {
		return snap, nil
	}
	if rows := r.recent[readerKey(kind, key)]; len(rows) > 0 {
		return &rows[0], nil
	}
	return nil, nil
}

func (r *fakeReader) LatestForSubKey(_ context.Context, kind domain.Kind, key, subKey string) (*domain.Snapshot, error) {
	return r.sub[readerKey(kind, key)+"|"+subKey], nil
}

func (r *fakeReader) History(_ context.Context, kind domain.Kind, key string, limit int, before time.Time) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for _, row := range r.recent[readerKey(kind, key)] {
		if len(out) >= limit {
			break
		}
		if row.CapturedAt.After(before) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeReader) Recent(_ context.Context, kind domain.Kind, key string, limit int) ([]domain.Snapshot, error) {
	rows := r.recent[readerKey(kind, key)]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *fakeReader) LatestByKeys(ctx context.Context, kind domain.Kind, keys []string) (map[string]domain.Snapshot, error) {
	out := map[string]domain.Snapshot{}
	for _, key := range keys {
		if snap, _ := r.Latest(ctx, kind, key); snap != nil {
			out[key] = *snap
		}
	}
	return out, nil
}

// fakeResolver serves canned payloads per entity; missing entries come back
// as upstream 404 bodies, the way the real client passes them through.
type fakeResolver struct {
	players    map[string]string
	clans      map[string]string
	groups     map[string]string
	leagueWars map[string]string
	warBody    string
	warStatus  int
	warLogBody string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		players:    map[string]string{},
		clans:      map[string]string{},
		groups:     map[string]string{},
		leagueWars: map[string]string{},
	}
}

func canned(payloads map[string]string, key string) (json.RawMessage, int, error) {
	if body, ok := payloads[key]; ok {
		return json.RawMessage(body), http.StatusOK, nil
	}
	return json.RawMessage(`{"reason":"notFound"}`), http.StatusNotFound, nil
}

func (f *fakeResolver) ResolvePlayer(_ context.Context, tag string) (json.RawMessage, int, error) {
	return canned(f.players, tag)
}

func (f *fakeResolver) ResolveClan(_ context.Context, tag string) (json.RawMessage, int, error) {
	return canned(f.clans, tag)
}

func (f *fakeResolver) ResolveCurrentWar(_ context.Context, tag string) (json.RawMessage, int, error) {
	return json.RawMessage(f.warBody), f.warStatus, nil
}

func (f *fakeResolver) ResolveWarLog(_ context.Context, tag string) (json.RawMessage, int, error) {
	return json.RawMessage(f.warLogBody), http.StatusOK, nil
}

func (f *fakeResolver) ResolveLeagueGroup(_ context.Context, tag, season string) (json.RawMessage, int, error) {
	if body, ok := f.groups[tag]; ok {
		return json.RawMessage(body), http.StatusOK, nil
	}
	return nil, http.StatusInternalServerError, nil
}

func (f *fakeResolver) ResolveLeagueWar(_ context.Context, warTag, season string) (json.RawMessage, int, error) {
	return canned(f.leagueWars, warTag)
}
