package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestInsightClient создает клиент, направленный на тестовый сервер
func newTestInsightClient(server *httptest.Server, pageSize int) *InsightClient {
	return &InsightClient{
		BaseURL:    server.URL,
		APIURL:     server.URL,
		Email:      "svc@example.com",
		APIToken:   "token",
		PageSize:   pageSize,
		HTTPClient: server.Client(),
		Logger:     log.New(io.Discard, "", 0),
	}
}

// fastRetryConfig конфигурация повторов без заметных пауз
func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffFactor:   2.0,
		RetryableErrors: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests},
	}
}

func TestInsightClient_GetWorkspaceID(t *testing.T) {
	discoveries := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/servicedeskapi/assets/workspace", r.URL.Path)
		// Авторизация Basic email:api_token
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		discoveries++
		fmt.Fprint(w, `{"values":[{"workspaceId":"ws-777"}]}`)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 50)

	ws, err := client.GetWorkspaceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws-777", ws)

	// Повторный вызов отвечает из кэша в памяти
	ws, err = client.GetWorkspaceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws-777", ws)
	assert.Equal(t, 1, discoveries)
}

func TestInsightClient_GetWorkspaceID_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values":[]}`)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 50)
	_, err := client.GetWorkspaceID(context.Background())
	assert.Error(t, err)
}

func TestInsightClient_QueryObjects_PaginatesByIsLast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/workspace/ws-1/v1/object/aql", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `objectType = "Equipment"`, body["qlQuery"])

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		switch startAt {
		case 0:
			fmt.Fprint(w, `{"values":[{"id":"1"},{"id":"2"}],"startAt":0,"isLast":false}`)
		case 2:
			fmt.Fprint(w, `{"values":[{"id":"3"}],"startAt":2,"isLast":true}`)
		default:
			t.Fatalf("неожиданный startAt: %d", startAt)
		}
	}))
	defer server.Close()

	client := newTestInsightClient(server, 2)
	client.workspaceID = "ws-1"

	objects, err := client.QueryObjects(context.Background(), `objectType = "Equipment"`, 0)
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "1", objects[0].ID)
	assert.Equal(t, "3", objects[2].ID)
}

func TestInsightClient_QueryObjects_PaginatesByTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		switch startAt {
		case 0:
			fmt.Fprint(w, `{"values":[{"id":"1"},{"id":"2"}],"startAt":0,"total":3}`)
		case 2:
			fmt.Fprint(w, `{"values":[{"id":"3"}],"startAt":2,"total":3}`)
		default:
			t.Fatalf("неожиданный startAt: %d", startAt)
		}
	}))
	defer server.Close()

	client := newTestInsightClient(server, 2)
	client.workspaceID = "ws-1"

	objects, err := client.QueryObjects(context.Background(), "any", 0)
	require.NoError(t, err)
	assert.Len(t, objects, 3)
}

func TestInsightClient_QueryObjects_CapStopsPagination(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		// Сервер готов отдавать страницы бесконечно
		fmt.Fprintf(w, `{"values":[{"id":"%d"},{"id":"%d"}],"startAt":%d,"isLast":false}`,
			startAt+1, startAt+2, startAt)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 2)
	client.workspaceID = "ws-1"

	objects, err := client.QueryObjects(context.Background(), "any", 3)
	require.NoError(t, err)
	assert.Len(t, objects, 3)
	assert.Equal(t, 2, calls)
}

func TestInsightClient_QueryObjects_ShortPageEndsQuery(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Ни total, ни isLast: неполная страница означает конец выборки
		fmt.Fprint(w, `{"values":[{"id":"1"}],"startAt":0}`)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 2)
	client.workspaceID = "ws-1"

	objects, err := client.QueryObjects(context.Background(), "any", 0)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
	assert.Equal(t, 1, calls)
}

func TestInsightClient_CallWithRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 50)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/ping", nil)
	require.NoError(t, err)

	resp, err := client.CallWithRetry(req, fastRetryConfig())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestInsightClient_CallWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 50)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/ping", nil)
	require.NoError(t, err)

	resp, err := client.CallWithRetry(req, fastRetryConfig())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestInsightClient_UpdateObject(t *testing.T) {
	var gotBody struct {
		Attributes []InsightAttribute `json:"attributes"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/workspace/ws-1/v1/object/ext-5", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestInsightClient(server, 50)
	client.workspaceID = "ws-1"

	err := client.UpdateObject(context.Background(), "ext-5", []InsightAttribute{
		attributeValue("2", "Affecté"),
	})
	require.NoError(t, err)
	require.Len(t, gotBody.Attributes, 1)
	assert.Equal(t, "2", gotBody.Attributes[0].ObjectTypeAttributeID)
	assert.Equal(t, "Affecté", gotBody.Attributes[0].ObjectAttributeValues[0].Value)
}

func TestInsightClient_FirstValue(t *testing.T) {
	ref := &InsightReferencedObject{Label: "Dell"}
	ref.ObjectType.Name = "Constructeurs"
	obj := InsightObject{
		ID: "1",
		Attributes: []InsightAttribute{
			{ObjectTypeAttributeID: "10", ObjectAttributeValues: []InsightAttributeValue{{Value: "SN01"}}},
			{ObjectTypeAttributeID: "11"},
			{ObjectTypeAttributeID: "12", ObjectAttributeValues: []InsightAttributeValue{{Status: &InsightStatusValue{Name: "Disponible"}}}},
			{ObjectTypeAttributeID: "13", ObjectAttributeValues: []InsightAttributeValue{{ReferencedObject: ref}}},
		},
	}

	assert.Equal(t, "SN01", obj.FirstValue("10"))
	assert.Equal(t, "", obj.FirstValue("11"))
	assert.Equal(t, "Disponible", obj.FirstValue("12"))
	assert.Equal(t, "Dell", obj.FirstValue("13"))
	assert.Equal(t, "", obj.FirstValue("99"))
}
