package models

import "time"

// Conflict is an immutable snapshot of an update that collided with a
// divergent remote version while its collection used the manual strategy.
type Conflict struct {
	DetectedAt time.Time `json:"detected_at"`
	Local      *Record   `json:"local"`
	Remote     *Record   `json:"remote"`
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Seq        uint64    `json:"seq"` // Seq запись очереди, вызвавшая конфликт
}

// Key returns the (collection, id) pair of the conflicting record.
func (c *Conflict) Key() RecordKey {
	return RecordKey{Collection: c.Collection, ID: c.ID}
}
