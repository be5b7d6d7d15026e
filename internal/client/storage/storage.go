package storage

// Store bundles every client-side persistence concern. The bbolt
// implementation satisfies it with a single database file.
type Store interface {
	RecordStorage
	ShadowStorage
	QueueStorage
	ConflictStorage
	MetadataStorage

	Close() error
}
