// Package migrate brings an umpire data root from its recorded environment
// version up to the version this binary expects, one numbered migration at a
// time.
//
// Each run writes a progress marker naming the migration in flight and the
// owning pid. A leftover marker from a crashed run is detected on startup:
// if the recorded process is gone, the marked migration is re-run (all
// migrations must be idempotent); if it is still alive, the runner refuses
// to start. The config store is archived before the first migration of a run.
package migrate
