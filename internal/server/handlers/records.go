package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/runsync/internal/models"
	"github.com/iudanet/runsync/internal/server/storage"
	"github.com/iudanet/runsync/internal/validation"
	"github.com/iudanet/runsync/pkg/api"
)

// RecordStorage определяет интерфейс для работы с записями коллекций
type RecordStorage interface {
	ListRecords(ctx context.Context, collection string) ([]*models.Record, error)
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)
	InsertRecord(ctx context.Context, collection string, record *models.Record) error
	UpdateRecord(ctx context.Context, collection string, record *models.Record) error
	DeleteRecord(ctx context.Context, collection, id string) error
}

// RecordsHandler serves the collection endpoints
type RecordsHandler struct {
	logger  *slog.Logger
	storage RecordStorage
	now     func() time.Time
	newID   func() string
}

// NewRecordsHandler creates a new collection handler
func NewRecordsHandler(logger *slog.Logger, storage RecordStorage) *RecordsHandler {
	return &RecordsHandler{
		logger:  logger,
		storage: storage,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// List обрабатывает GET /api/v1/collections/{collection}
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}

	records, err := h.storage.ListRecords(r.Context(), collection)
	if err != nil {
		h.logger.Error("Failed to list records", "collection", collection, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to list records")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, records)
}

// Get обрабатывает GET /api/v1/collections/{collection}/{id}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	record, err := h.storage.GetRecord(r.Context(), collection, id)
	if err != nil {
		h.storageError(w, err, "get", collection, id)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, record)
}

// Create обрабатывает POST /api/v1/collections/{collection}
// Сервер назначает id, если он не передан или временный
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}

	record, ok := h.decode(w, r)
	if !ok {
		return
	}
	if record.ID() == "" || models.IsTempID(record.ID()) {
		record.SetID(h.newID())
	}

	now := h.timestamp()
	record.Set(api.FieldCreatedAt, now)
	record.Set(api.FieldUpdatedAt, now)

	if err := h.storage.InsertRecord(r.Context(), collection, record); err != nil {
		if errors.Is(err, storage.ErrRecordExists) {
			writeError(w, h.logger, http.StatusConflict, "record already exists")
			return
		}
		h.storageError(w, err, "insert", collection, record.ID())
		return
	}

	h.logger.Info("Record created", "collection", collection, "id", record.ID())
	writeJSON(w, h.logger, http.StatusCreated, record)
}

// Update обрабатывает PUT /api/v1/collections/{collection}/{id}
// Запись заменяется целиком; created_at сохраняется, если клиент его не прислал
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	record, ok := h.decode(w, r)
	if !ok {
		return
	}
	record.SetID(id)

	existing, err := h.storage.GetRecord(r.Context(), collection, id)
	if err != nil {
		h.storageError(w, err, "get", collection, id)
		return
	}
	if _, ok := record.Get(api.FieldCreatedAt); !ok {
		if created, ok := existing.Get(api.FieldCreatedAt); ok {
			record.Set(api.FieldCreatedAt, created)
		}
	}
	record.Set(api.FieldUpdatedAt, h.timestamp())

	if err := h.storage.UpdateRecord(r.Context(), collection, record); err != nil {
		h.storageError(w, err, "update", collection, id)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, record)
}

// Delete обрабатывает DELETE /api/v1/collections/{collection}/{id}
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	if err := h.storage.DeleteRecord(r.Context(), collection, id); err != nil {
		h.storageError(w, err, "delete", collection, id)
		return
	}

	h.logger.Info("Record deleted", "collection", collection, "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordsHandler) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("collection")
	if err := validation.ValidateCollection(name); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return "", false
	}
	return name, true
}

func (h *RecordsHandler) decode(w http.ResponseWriter, r *http.Request) (*models.Record, bool) {
	record := models.NewRecord()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(record); err != nil {
		h.logger.Warn("Invalid record body", "path", r.URL.Path, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	return record, true
}

func (h *RecordsHandler) storageError(w http.ResponseWriter, err error, op, collection, id string) {
	if errors.Is(err, storage.ErrRecordNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "record not found")
		return
	}
	h.logger.Error("Storage failure", "op", op, "collection", collection, "id", id, "error", err)
	writeError(w, h.logger, http.StatusInternalServerError, "storage failure")
}

func (h *RecordsHandler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339Nano)
}
