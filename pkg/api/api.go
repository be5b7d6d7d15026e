// Package api holds the wire contract shared by the runsync client and the
// reference collection server.
package api

import (
	"net/url"
	"time"
)

const (
	// PathHealth is the liveness endpoint
	PathHealth = "/api/v1/health"
	// PathCollections is the prefix of the collection endpoints
	PathCollections = "/api/v1/collections"
	// PathWS is the websocket used as a connectivity signal
	PathWS = "/api/v1/ws"
)

// Record fields stamped by the server
const (
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// CollectionPath returns /api/v1/collections/{collection}
func CollectionPath(collection string) string {
	return PathCollections + "/" + url.PathEscape(collection)
}

// RecordPath returns /api/v1/collections/{collection}/{id}
func RecordPath(collection, id string) string {
	return CollectionPath(collection) + "/" + url.PathEscape(id)
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse представляет ответ health endpoint
type HealthResponse struct {
	Time   time.Time `json:"time"`   // время сервера
	Status string    `json:"status"` // "ok"
}
