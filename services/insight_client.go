package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"backend_parc/config"
	"backend_parc/database"
)

// InsightClient клиент для работы с API внешней asset-системы (Jira Assets / Insight)
type InsightClient struct {
	BaseURL    string
	APIURL     string
	Email      string
	APIToken   string
	PageSize   int
	HTTPClient *http.Client
	Logger     *log.Logger

	// workspaceID кэшируется после первого обнаружения
	workspaceID string
}

// RetryConfig конфигурация для retry механизма
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []int // HTTP статус коды для повтора
}

// InsightStatusValue статусное значение атрибута внешней системы
type InsightStatusValue struct {
	Name string `json:"name"`
}

// InsightReferencedObject ссылка на другой объект внешней системы
type InsightReferencedObject struct {
	Label      string `json:"label"`
	ObjectType struct {
		Name string `json:"name"`
	} `json:"objectType"`
}

// InsightAttributeValue значение атрибута объекта: строка, статус или ссылка
// на другой объект (производитель, сотрудник)
type InsightAttributeValue struct {
	Value            string                   `json:"value,omitempty"`
	Status           *InsightStatusValue      `json:"status,omitempty"`
	ReferencedObject *InsightReferencedObject `json:"referencedObject,omitempty"`
}

// Display возвращает отображаемое значение: строку, имя статуса или подпись ссылки
func (v *InsightAttributeValue) Display() string {
	if v.Value != "" {
		return v.Value
	}
	if v.Status != nil {
		return v.Status.Name
	}
	if v.ReferencedObject != nil {
		return v.ReferencedObject.Label
	}
	return ""
}

// InsightAttribute атрибут объекта, привязанный к типу атрибута по ID
type InsightAttribute struct {
	ObjectTypeAttributeID string                  `json:"objectTypeAttributeId"`
	ObjectAttributeValues []InsightAttributeValue `json:"objectAttributeValues"`
}

// InsightObject объект внешней asset-системы
type InsightObject struct {
	ID         string             `json:"id"`
	ObjectKey  string             `json:"objectKey"`
	Label      string             `json:"label"`
	Attributes []InsightAttribute `json:"attributes"`
}

// FirstValue возвращает первое значение атрибута с заданным ID типа (пустая строка, если нет)
func (o *InsightObject) FirstValue(typeAttributeID string) string {
	for _, attr := range o.Attributes {
		if attr.ObjectTypeAttributeID == typeAttributeID && len(attr.ObjectAttributeValues) > 0 {
			return attr.ObjectAttributeValues[0].Display()
		}
	}
	return ""
}

// InsightObjectPayload тело запроса создания/обновления объекта
type InsightObjectPayload struct {
	ObjectTypeID string             `json:"objectTypeId"`
	Attributes   []InsightAttribute `json:"attributes"`
}

// insightQueryResponse страница результатов IQL-запроса
type insightQueryResponse struct {
	Values     []InsightObject `json:"values"`
	Total      *int            `json:"total,omitempty"`
	StartAt    int             `json:"startAt"`
	MaxResults int             `json:"maxResults"`
	IsLast     *bool           `json:"isLast,omitempty"`
}

// workspaceResponse ответ обнаружения workspace
type workspaceResponse struct {
	Values []struct {
		WorkspaceID string `json:"workspaceId"`
	} `json:"values"`
}

// NewInsightClient создает новый клиент для API внешней asset-системы
func NewInsightClient(cfg *config.Config, logger *log.Logger) *InsightClient {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client := &http.Client{
		Timeout: cfg.Insight.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &InsightClient{
		BaseURL:    cfg.Insight.BaseURL,
		APIURL:     cfg.Insight.APIURL,
		Email:      cfg.Insight.Email,
		APIToken:   cfg.Insight.APIToken,
		PageSize:   cfg.Sync.PageSize,
		HTTPClient: client,
		Logger:     logger,
	}
}

// GetDefaultRetryConfig возвращает стандартную конфигурацию retry
func GetDefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusTooManyRequests,
		},
	}
}

// authHeader формирует заголовок Basic-авторизации (email:api_token)
func (c *InsightClient) authHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	return "Basic " + token
}

// GetWorkspaceID обнаруживает workspace ID внешней системы.
// Результат кэшируется в Redis и в памяти клиента: workspace меняется только при переезде инсталляции.
func (c *InsightClient) GetWorkspaceID(ctx context.Context) (string, error) {
	if c.workspaceID != "" {
		return c.workspaceID, nil
	}

	// Пробуем кэш
	if cached, err := database.CacheGet(database.WorkspaceCacheKey); err == nil && cached != "" {
		c.workspaceID = cached
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/rest/servicedeskapi/assets/workspace", nil)
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса workspace: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.CallWithRetry(req, GetDefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("ошибка запроса workspace: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("неуспешное обнаружение workspace, статус: %d", resp.StatusCode)
	}

	var wsResp workspaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&wsResp); err != nil {
		return "", fmt.Errorf("ошибка декодирования ответа workspace: %w", err)
	}

	if len(wsResp.Values) == 0 || wsResp.Values[0].WorkspaceID == "" {
		return "", fmt.Errorf("внешняя система не вернула ни одного workspace")
	}

	c.workspaceID = wsResp.Values[0].WorkspaceID
	if err := database.CacheSet(database.WorkspaceCacheKey, c.workspaceID, 24*time.Hour); err != nil {
		c.Logger.Printf("Не удалось закэшировать workspace ID: %v", err)
	}

	c.Logger.Printf("Обнаружен workspace внешней системы: %s", c.workspaceID)
	return c.workspaceID, nil
}

// objectURL строит URL ресурса объектного API для текущего workspace
func (c *InsightClient) objectURL(ctx context.Context, path string) (string, error) {
	workspaceID, err := c.GetWorkspaceID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/workspace/%s/v1%s", c.APIURL, workspaceID, path), nil
}

// GetObject получает объект по его ID во внешней системе
func (c *InsightClient) GetObject(ctx context.Context, objectID string) (*InsightObject, error) {
	u, err := c.objectURL(ctx, "/object/"+objectID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.CallWithRetry(req, GetDefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса объекта %s: %w", objectID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("объект %s не найден во внешней системе", objectID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неуспешное получение объекта %s, статус: %d", objectID, resp.StatusCode)
	}

	var object InsightObject
	if err := json.NewDecoder(resp.Body).Decode(&object); err != nil {
		return nil, fmt.Errorf("ошибка декодирования объекта: %w", err)
	}

	return &object, nil
}

// CreateObject создает объект во внешней системе и возвращает его представление
func (c *InsightClient) CreateObject(ctx context.Context, payload *InsightObjectPayload) (*InsightObject, error) {
	u, err := c.objectURL(ctx, "/object/create")
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации объекта: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.CallWithRetry(req, GetDefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса создания объекта: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неуспешное создание объекта, статус: %d", resp.StatusCode)
	}

	var object InsightObject
	if err := json.NewDecoder(resp.Body).Decode(&object); err != nil {
		return nil, fmt.Errorf("ошибка декодирования ответа создания: %w", err)
	}

	c.Logger.Printf("Объект создан во внешней системе: %s (key: %s)", object.ID, object.ObjectKey)
	return &object, nil
}

// UpdateObject обновляет перечисленные атрибуты объекта во внешней системе.
// Передаются только изменяемые атрибуты: внешняя система не трогает остальные.
func (c *InsightClient) UpdateObject(ctx context.Context, objectID string, attributes []InsightAttribute) error {
	u, err := c.objectURL(ctx, "/object/"+objectID)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(map[string]interface{}{"attributes": attributes})
	if err != nil {
		return fmt.Errorf("ошибка сериализации атрибутов: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", u, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.CallWithRetry(req, GetDefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("ошибка запроса обновления объекта %s: %w", objectID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("неуспешное обновление объекта %s, статус: %d", objectID, resp.StatusCode)
	}

	return nil
}

// QueryObjects выполняет IQL-запрос с постраничной выборкой.
// Завершение: по суммарному количеству, если внешняя система его вернула, иначе
// по неполной странице. maxResults > 0 ограничивает выборку сверху, 0 — без лимита.
func (c *InsightClient) QueryObjects(ctx context.Context, iql string, maxResults int) ([]InsightObject, error) {
	baseURL, err := c.objectURL(ctx, "/object/aql")
	if err != nil {
		return nil, err
	}

	var all []InsightObject
	startAt := 0

	for {
		pageSize := c.PageSize
		if maxResults > 0 && maxResults-len(all) < pageSize {
			pageSize = maxResults - len(all)
		}

		u := fmt.Sprintf("%s?startAt=%d&maxResults=%d", baseURL, startAt, pageSize)
		jsonData, err := json.Marshal(map[string]string{"qlQuery": iql})
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("ошибка создания запроса: %w", err)
		}
		req.Header.Set("Authorization", c.authHeader())
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.CallWithRetry(req, GetDefaultRetryConfig())
		if err != nil {
			return nil, fmt.Errorf("ошибка выполнения IQL-запроса: %w", err)
		}

		var page insightQueryResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("неуспешный IQL-запрос, статус: %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("ошибка декодирования страницы результатов: %w", decodeErr)
		}

		all = append(all, page.Values...)
		startAt += len(page.Values)

		if maxResults > 0 && len(all) >= maxResults {
			all = all[:maxResults]
			break
		}
		if page.IsLast != nil && *page.IsLast {
			break
		}
		if page.Total != nil {
			if startAt >= *page.Total {
				break
			}
		} else if len(page.Values) < pageSize {
			// Нет суммарного количества: неполная страница означает конец выборки
			break
		}
		if len(page.Values) == 0 {
			break
		}
	}

	return all, nil
}

// FindObjectBySerial ищет объект по серийному номеру через IQL
func (c *InsightClient) FindObjectBySerial(ctx context.Context, objectType, serialNumber string) (*InsightObject, error) {
	iql := fmt.Sprintf(`objectType = "%s" AND "Serial Number" = "%s"`, objectType, serialNumber)
	objects, err := c.QueryObjects(ctx, iql, 1)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}
	return &objects[0], nil
}

// CallWithRetry выполняет HTTP запрос с retry механизмом
func (c *InsightClient) CallWithRetry(req *http.Request, config RetryConfig) (*http.Response, error) {
	var lastErr error
	var resp *http.Response

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		// Клонируем запрос для повторного использования
		reqClone := req.Clone(req.Context())

		// Восстанавливаем тело запроса если оно есть
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("ошибка восстановления тела запроса: %w", err)
			}
			reqClone.Body = body
		}

		resp, lastErr = c.HTTPClient.Do(reqClone)

		// Если запрос успешен или это последняя попытка
		if lastErr == nil && !c.shouldRetry(resp.StatusCode, config.RetryableErrors) {
			return resp, nil
		}

		// Закрываем тело ответа перед повтором
		if resp != nil {
			resp.Body.Close()
		}

		// Если это последняя попытка, возвращаем ошибку
		if attempt == config.MaxRetries {
			break
		}

		// Вычисляем задержку с экспоненциальным backoff
		delay := c.calculateDelay(attempt, config)

		c.Logger.Printf("Повтор запроса %s через %v (попытка %d/%d), причина: %v",
			req.URL.String(), delay, attempt+1, config.MaxRetries+1, lastErr)

		// Ждем перед повтором
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("все попытки исчерпаны, последняя ошибка: %w", lastErr)
	}

	return resp, nil
}

// shouldRetry определяет, нужно ли повторить запрос
func (c *InsightClient) shouldRetry(statusCode int, retryableErrors []int) bool {
	for _, code := range retryableErrors {
		if statusCode == code {
			return true
		}
	}
	return false
}

// calculateDelay вычисляет задержку для retry с экспоненциальным backoff
func (c *InsightClient) calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

// IsHealthy проверяет доступность API внешней системы
func (c *InsightClient) IsHealthy(ctx context.Context) error {
	if _, err := c.GetWorkspaceID(ctx); err != nil {
		return fmt.Errorf("внешняя система недоступна: %w", err)
	}
	return nil
}
