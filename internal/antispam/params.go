package antispam

import "time"

// Params bundles the process-wide tunables of the pipeline. Per-guild
// behavior lives in Policy; these values are shared by every guild.
type Params struct {
	// BlockDuration is how long an author stays soft-blocked after a
	// verdict; blocked authors have their messages deleted on sight.
	BlockDuration time.Duration

	// TimeoutDuration is the platform timeout applied by enforcement.
	TimeoutDuration time.Duration

	// SlowmodeSeconds is the slowmode applied to a channel on a verdict.
	SlowmodeSeconds int

	// MassSlowmodeSeconds is the slowmode applied while a mass attack is
	// active.
	MassSlowmodeSeconds int

	// RestoreDelay is the quiet interval before the saved slowmode value
	// is restored.
	RestoreDelay time.Duration

	// MassRestoreDelay replaces RestoreDelay while a mass attack is active.
	MassRestoreDelay time.Duration

	// PurgeWindow bounds how far back the purge step reaches.
	PurgeWindow time.Duration

	// PurgeScanLimit caps how many history entries the purge step scans.
	PurgeScanLimit int

	// DeletePause is the pause between individual message deletes.
	DeletePause time.Duration

	// RateLimitPause is the pause after a rate-limited delete before the
	// purge gives up on the remainder.
	RateLimitPause time.Duration

	// DMCooldown throttles offender DMs per (guild, author).
	DMCooldown time.Duration
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		BlockDuration:       5 * time.Minute,
		TimeoutDuration:     5 * time.Minute,
		SlowmodeSeconds:     60,
		MassSlowmodeSeconds: 60,
		RestoreDelay:        10 * time.Second,
		MassRestoreDelay:    60 * time.Second,
		PurgeWindow:         30 * time.Minute,
		PurgeScanLimit:      100,
		DeletePause:         5 * time.Second,
		RateLimitPause:      30 * time.Second,
		DMCooldown:          time.Minute,
	}
}
