package constants

import "time"

// Freshness windows per snapshot kind. War-state overrides live in the
// freshness package; these are the base TTLs.
const (
	PlayerSnapshotTTL = 23 * time.Hour
	ClanSnapshotTTL   = 23 * time.Hour
	CurrentWarTTL     = 15 * time.Minute
	ClanWarLogTTL     = 12 * time.Hour
	LeagueWarTTL      = 5 * time.Minute
)

const (
	// PlayerProgressWindow is the number of daily samples scanned for a
	// player progress series.
	PlayerProgressWindow = 90
	// ClanProgressWindow is the day range of the clan progress series; one
	// extra sample is read to seed the first delta.
	ClanProgressWindow = 60
	// UpgradeHistoryLimit caps the snapshots scanned for the upgrade
	// timeline.
	UpgradeHistoryLimit = 360
	// CWLSeasonListLimit caps the seasons returned by the CWL list.
	CWLSeasonListLimit = 6
	// WarLogDetailLimit caps the wars enriched with archived detail.
	WarLogDetailLimit = 10
	// CWLWarFetchConcurrency bounds parallel war resolves in the summary.
	CWLWarFetchConcurrency = 4
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)
