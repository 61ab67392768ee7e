package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(httpclient.Config{BaseURL: srv.URL, ReadTimeout: time.Second})
}

func TestClient_GetTicketType(t *testing.T) {
	// Arrange
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/ticket-types/1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"event_id":7,"name":"VIP","price":250.5,"available_qty":5,"active":true}`))
	})

	// Act
	tt, err := client.GetTicketType(context.Background(), 1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), tt.EventID)
	assert.Equal(t, "VIP", tt.Name)
	assert.Equal(t, 250.5, tt.Price)
	assert.Equal(t, 5, tt.AvailableQty)
	assert.True(t, tt.Active)
}

func TestClient_GetEvent_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"event not found"}`))
	})

	_, err := client.GetEvent(context.Background(), 99)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "event not found")
}

func TestClient_DecreaseStock(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/ticket-types/3/decrease", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("quantity"))
		w.WriteHeader(http.StatusOK)
	})

	err := client.DecreaseStock(context.Background(), 3, 2)

	assert.NoError(t, err)
}

func TestClient_DecreaseStock_Insufficient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"insufficient stock: available 1"}`))
	})

	err := client.DecreaseStock(context.Background(), 3, 2)

	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestClient_IncreaseStock_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ticket-types/3/increase", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.IncreaseStock(context.Background(), 3, 2)

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Unreachable(t *testing.T) {
	client := NewClient(httpclient.Config{BaseURL: "http://127.0.0.1:1", ConnectTimeout: 100 * time.Millisecond, ReadTimeout: 200 * time.Millisecond})

	err := client.DecreaseStock(context.Background(), 1, 1)

	assert.ErrorIs(t, err, ErrUnavailable)
}
