// Package migrator drives environment migrations for the umpire-migrate
// binary. It upgrades a data root to the schema version this build of the
// tooling expects, or just reports the gap in check mode.
package migrator
