package handlers

import (
	"net/http"

	"github.com/iudanet/runsync/pkg/api"
)

// NewRouter registers the collection, health and websocket endpoints
func NewRouter(records *RecordsHandler, health *HealthHandler, ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.PathHealth, health.Health)
	mux.HandleFunc("GET "+api.PathWS, ws.Serve)

	collection := api.PathCollections + "/{collection}"
	record := collection + "/{id}"
	mux.HandleFunc("GET "+collection, records.List)
	mux.HandleFunc("POST "+collection, records.Create)
	mux.HandleFunc("GET "+record, records.Get)
	mux.HandleFunc("PUT "+record, records.Update)
	mux.HandleFunc("DELETE "+record, records.Delete)

	return mux
}
