// Package archive packs and unpacks tar.gz archives for bundle builds and
// migration backups. Entries are written in sorted order so the same inputs
// produce byte-identical archives apart from gzip timestamps, which are
// zeroed for the same reason.
package archive
