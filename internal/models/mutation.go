package models

import "time"

// Action is the kind of change carried by a queued mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MutationState describes where a queued mutation is in its lifecycle.
type MutationState string

const (
	// MutationPending waits for the next reconciliation pass.
	MutationPending MutationState = "pending"
	// MutationConflicted is held until a manual conflict resolution clears it.
	MutationConflicted MutationState = "conflicted"
)

// Mutation представляет запись очереди изменений, ожидающую отправки на сервер.
type Mutation struct {
	EnqueuedAt    time.Time     `json:"enqueued_at"`     // EnqueuedAt время постановки в очередь
	LastAttemptAt *time.Time    `json:"last_attempt_at"` // LastAttemptAt время последней попытки применения
	Payload       *Record       `json:"payload"`         // Payload полная локальная версия записи (для delete только id)
	Action        Action        `json:"action"`          // Action create, update или delete
	Collection    string        `json:"collection"`      // Collection имя коллекции
	RecordID      string        `json:"record_id"`       // RecordID идентификатор записи (может быть временным)
	LastError     string        `json:"last_error,omitempty"`
	State         MutationState `json:"state"`
	Changed       []string      `json:"changed,omitempty"` // Changed поля, изменённые вызывающим (для merge)
	Seq           uint64        `json:"seq"`               // Seq монотонный номер, назначается очередью
	Attempts      int           `json:"attempts"`
	Force         bool          `json:"force,omitempty"` // Force применить как client-wins (после ручного разрешения)
}

// Key returns the (collection, id) pair this mutation targets.
func (m *Mutation) Key() RecordKey {
	return RecordKey{Collection: m.Collection, ID: m.RecordID}
}

// Clone creates a deep copy of the mutation
func (m *Mutation) Clone() *Mutation {
	c := *m
	c.Payload = m.Payload.Clone()
	if m.Changed != nil {
		c.Changed = append([]string(nil), m.Changed...)
	}
	if m.LastAttemptAt != nil {
		t := *m.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return &c
}

// RecordKey identifies a record across collections.
type RecordKey struct {
	Collection string
	ID         string
}

func (k RecordKey) String() string {
	return k.Collection + "/" + k.ID
}
