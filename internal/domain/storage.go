package domain

import "strings"

// StorageItem is a file or folder in a file store.
type StorageItem struct {
	ID     string // Opaque identifier (Drive file id, object key)
	Title  string // Display name
	Folder bool
	Size   int64
}

// MatchesJob reports whether the item is an output of the named job.
// Exports are written as the job name plus an extension or a tile suffix,
// so a plain substring test would let "X_1" match "X_10.tif".
func (i StorageItem) MatchesJob(name string) bool {
	if i.Folder || name == "" {
		return false
	}
	if i.Title == name {
		return true
	}
	rest, ok := strings.CutPrefix(i.Title, name)
	return ok && (strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "-"))
}
