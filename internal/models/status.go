package models

import (
	"slices"
	"time"
)

// SyncStatus is the process-wide sync state shown to users. It is owned by
// the connectivity coordinator; everyone else receives copies.
type SyncStatus struct {
	LastSyncTime        time.Time `json:"last_sync_time"`
	ConflictCollections []string  `json:"conflict_collections"`
	PendingCount        int       `json:"pending_count"`
	FailedCount         int       `json:"failed_count"`
	Online              bool      `json:"online"`
	Syncing             bool      `json:"syncing"`
}

// Clone returns an independent copy of the status
func (s SyncStatus) Clone() SyncStatus {
	s.ConflictCollections = slices.Clone(s.ConflictCollections)
	return s
}

// HasConflicts reports whether any collection holds unresolved conflicts.
func (s SyncStatus) HasConflicts() bool {
	return len(s.ConflictCollections) > 0
}

// HasConflictsIn reports whether the collection holds unresolved conflicts.
func (s SyncStatus) HasConflictsIn(collection string) bool {
	return slices.Contains(s.ConflictCollections, collection)
}
