// Package configstore persists versioned config documents and the
// staging/active promotion state.
//
// Documents are immutable JSON files named umpire.NNNN.json under the store
// root. The `active` and `staging` names are symlinks to document files;
// replacing one is done by creating a temporary symlink and renaming it over
// the old name, which is atomic on POSIX filesystems. Deployments are
// appended to a history file for audit and rollback.
package configstore
