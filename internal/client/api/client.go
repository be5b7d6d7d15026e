package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iudanet/runsync/internal/models"
	"github.com/iudanet/runsync/pkg/api"
)

var _ ClientAPI = (*Client)(nil)

// Client представляет HTTP клиент для взаимодействия с сервером коллекций
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// BaseURL returns the server address the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchAll получает все записи коллекции
func (c *Client) FetchAll(ctx context.Context, collection string) ([]*models.Record, error) {
	var records []*models.Record
	if err := c.doRequest(ctx, http.MethodGet, api.CollectionPath(collection), nil, &records); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	if records == nil {
		records = make([]*models.Record, 0)
	}
	return records, nil
}

// FetchByID получает одну запись
func (c *Client) FetchByID(ctx context.Context, collection, id string) (*models.Record, error) {
	var record models.Record
	if err := c.doRequest(ctx, http.MethodGet, api.RecordPath(collection, id), nil, &record); err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", collection, id, err)
	}
	return &record, nil
}

// Insert создает запись на сервере
func (c *Client) Insert(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
	var stored models.Record
	if err := c.doRequest(ctx, http.MethodPost, api.CollectionPath(collection), record, &stored); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return &stored, nil
}

// Update заменяет запись на сервере
func (c *Client) Update(ctx context.Context, collection, id string, record *models.Record) (*models.Record, error) {
	var stored models.Record
	if err := c.doRequest(ctx, http.MethodPut, api.RecordPath(collection, id), record, &stored); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return &stored, nil
}

// Delete удаляет запись на сервере
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, api.RecordPath(collection, id), nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, api.PathHealth, nil, &resp); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// doRequest выполняет HTTP запрос. Любая ошибка возвращается как *RemoteError
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return &RemoteError{Kind: KindPermanent, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return &RemoteError{Kind: KindPermanent, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки и таймауты считаем временными
		return &RemoteError{Kind: KindTransient, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Kind: KindTransient, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remoteErr := &RemoteError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && (errResp.Message != "" || errResp.Error != "") {
			remoteErr.Message = errResp.Message
			if remoteErr.Message == "" {
				remoteErr.Message = errResp.Error
			}
		} else {
			remoteErr.Message = strings.TrimSpace(string(respBody))
		}
		return remoteErr
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &RemoteError{Kind: KindPermanent, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	return nil
}
