package cgm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"golang.org/x/oauth2"
)

const (
	serviceName = "cgm"

	// Формат дат, который принимает API вендора (без зоны, UTC)
	vendorTimeFormat = "2006-01-02T15:04:05"

	defaultTimeout = 15 * time.Second
	maxBodySize    = 1 << 20
)

// Config - параметры OAuth приложения у вендора CGM.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// Token - пара токенов вендора в формате ответа клиенту.
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Client проксирует OAuth и чтение показаний сенсора. Состояния не хранит.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient создает клиент CGM.
func NewClient(cfg Config, log *logger.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/v2/oauth2/login",
				TokenURL:  baseURL + "/v2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("cgm"),
	}
}

// Exchange меняет authorization code на токены.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		c.log.Warnw("CGM code exchange failed", "error", err)
		return nil, translateError("exchange code", err)
	}
	return toToken(tok), nil
}

// Refresh обновляет access token по refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	// Просроченный токен без access token заставляет TokenSource сходить за новым
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Minute)}
	tok, err := c.oauth.TokenSource(c.withHTTPClient(ctx), stale).Token()
	if err != nil {
		c.log.Warnw("CGM token refresh failed", "error", err)
		return nil, translateError("refresh token", err)
	}
	return toToken(tok), nil
}

// Readings возвращает показания глюкозы (EGV) за период как есть.
func (c *Client) Readings(ctx context.Context, accessToken string, start, end time.Time) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("startDate", start.UTC().Format(vendorTimeFormat))
	query.Set("endDate", end.UTC().Format(vendorTimeFormat))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/users/self/egvs?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build readings request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warnw("CGM readings request failed", "error", err)
		return nil, translateError("get readings", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, translateError("read readings", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warnw("CGM readings rejected", "status", resp.StatusCode)
		upstreamErr := domain.NewExternalServiceError(serviceName, domain.UpstreamResponse,
			http.StatusText(resp.StatusCode), "CGM provider rejected the request", resp.StatusCode, nil)
		upstreamErr.Body = body
		return nil, upstreamErr
	}

	if !json.Valid(body) {
		return nil, domain.NewExternalServiceError(serviceName, domain.UpstreamResponse,
			"invalid_body", "CGM provider returned malformed JSON", resp.StatusCode, nil)
	}
	return body, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toToken(tok *oauth2.Token) *Token {
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
	}
}

// translateError классифицирует сбой: таймаут, нет связи или ответ с ошибкой.
func translateError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		msg := retrieveErr.ErrorDescription
		if msg == "" {
			msg = retrieveErr.ErrorCode
		}
		if msg == "" {
			msg = "CGM provider rejected the token request"
		}

		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		upstreamErr := domain.NewExternalServiceError(serviceName, domain.UpstreamResponse, retrieveErr.ErrorCode, msg, status, err)
		upstreamErr.Body = retrieveErr.Body
		return upstreamErr
	}

	if isTimeout(err) {
		return domain.NewExternalServiceError(serviceName, domain.UpstreamTimeout, "timeout", "CGM provider timed out during "+op, 0, err)
	}
	return domain.NewExternalServiceError(serviceName, domain.UpstreamUnavailable, "unavailable", "CGM provider is unavailable", 0, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
