// Package freshness decides whether a cached snapshot must be refetched,
// given its age and the entity state recorded in its payload.
package freshness

import (
	"encoding/json"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/constants"
	"github.com/Ericks2008/cocapi20250719/internal/domain"
)

// War states reported by the CoC API.
const (
	StateInWar    = "inWar"
	StateWarEnded = "warEnded"
	StateNotInWar = "notInWar"
)

type payloadState struct {
	State  string `json:"state"`
	Season string `json:"season"`
}

// IsStale reports whether the snapshot must be refetched. A nil snapshot is
// always stale. State-based overrides follow the per-kind rules: an ended
// war is immutable and never refetched; a CWL group is archived permanently
// once its payload carries a season.
func IsStale(snap *domain.Snapshot, kind domain.Kind, now time.Time) bool {
	if snap == nil {
		return true
	}

	age := now.Sub(snap.CapturedAt)

	switch kind {
	case domain.KindPlayer:
		return age > constants.PlayerSnapshotTTL
	case domain.KindClan:
		return age > constants.ClanSnapshotTTL
	case domain.KindWar:
		// Only an in-progress war goes stale; terminal wars are archived
		// and every other state keeps serving until the war pointer moves.
		return parseState(snap.Payload) == StateInWar && age > constants.CurrentWarTTL
	case domain.KindClanWarLog:
		return age > constants.ClanWarLogTTL
	case domain.KindCWLGroup:
		return !hasSeason(snap.Payload)
	case domain.KindCWLWar:
		state := parseState(snap.Payload)
		if state == StateWarEnded || state == StateNotInWar {
			return false
		}
		return age > constants.LeagueWarTTL
	default:
		return true
	}
}

func parseState(payload json.RawMessage) string {
	var ps payloadState
	if err := json.Unmarshal(payload, &ps); err != nil {
		return ""
	}
	return ps.State
}

func hasSeason(payload json.RawMessage) bool {
	var ps payloadState
	if err := json.Unmarshal(payload, &ps); err != nil {
		return false
	}
	return ps.Season != ""
}
