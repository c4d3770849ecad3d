package cgm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:      server.URL + "/",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "glucoseapp://oauth",
		Timeout:      timeout,
	}, logger.NewNop())
}

func TestClient_Exchange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/oauth2/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "auth-code", r.PostForm.Get("code"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":7200}`))
	}, time.Second)

	token, err := client.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "at-1", token.AccessToken)
	assert.Equal(t, "rt-1", token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), token.ExpiresAt, time.Minute)
}

func TestClient_Refresh(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":7200}`))
	}, time.Second)

	token, err := client.Refresh(context.Background(), "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "at-2", token.AccessToken)
	assert.Equal(t, "rt-2", token.RefreshToken)
}

func TestClient_ExchangeRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Authorization code expired"}`))
	}, time.Second)

	_, err := client.Exchange(context.Background(), "stale")
	require.Error(t, err)

	var upstream *domain.ExternalServiceError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, domain.UpstreamResponse, upstream.Kind)
	assert.Equal(t, http.StatusBadGateway, upstream.HTTPStatus())
	assert.Equal(t, "Authorization code expired", upstream.Message)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Contains(t, string(upstream.Body), "invalid_grant")
}

func TestClient_Readings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/users/self/egvs", r.URL.Path)
		assert.Equal(t, "Bearer vendor-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-01-01T00:00:00", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2024-01-01T06:00:00", r.URL.Query().Get("endDate"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"value":104}]}`))
	}, time.Second)

	start := time.Date(2024, 1, 1, 3, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	body, err := client.Readings(context.Background(), "vendor-token", start, start.Add(6*time.Hour))
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[{"value":104}]}`, string(body))
}

func TestClient_ReadingsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"fault":"invalid token"}`))
	}, time.Second)

	_, err := client.Readings(context.Background(), "expired", time.Now().Add(-time.Hour), time.Now())

	var upstream *domain.ExternalServiceError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.JSONEq(t, `{"fault":"invalid token"}`, string(upstream.Body))
}

func TestClient_ReadingsTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := client.Readings(context.Background(), "t", time.Now().Add(-time.Hour), time.Now())

	var upstream *domain.ExternalServiceError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusGatewayTimeout, upstream.HTTPStatus())
}

func TestClient_ReadingsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second}, logger.NewNop())
	_, err := client.Readings(context.Background(), "t", time.Now().Add(-time.Hour), time.Now())

	var upstream *domain.ExternalServiceError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.HTTPStatus())
}
