package domain

import (
	"encoding/json"
	"time"
)

// Kind identifies which upstream entity a snapshot captures.
type Kind string

const (
	KindPlayer     Kind = "player"
	KindClan       Kind = "clan"
	KindWar        Kind = "war"
	KindClanWarLog Kind = "clan_war_log"
	KindCWLGroup   Kind = "cwl_group"
	KindCWLWar     Kind = "cwl_war"
)

// Snapshot is an immutable timestamped copy of an upstream JSON payload.
// EntityKey is the normalized tag (no leading '#'); SubKey carries the
// per-kind discriminator (war end date, CWL season) and is empty for
// player/clan snapshots.
type Snapshot struct {
	ID         string // nanoid
	Kind       Kind
	EntityKey  string
	SubKey     string
	Payload    json.RawMessage
	CapturedAt time.Time
}
