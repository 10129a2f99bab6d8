// Package astrology предоставляет клиент для внешнего провайдера астрологических данных.
package astrology

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenPath = "/token"
	chartPath = "/v2/astrology/kundli"

	tokenExpirySkew = 60 * time.Second
	maxErrorBody    = 512
)

// Config содержит параметры подключения к провайдеру.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	CacheTokens  bool
	Logger       *zap.Logger
}

// Client инкапсулирует HTTP-взаимодействие с провайдером: получение токена и запрос карты.
type Client struct {
	baseURL     string
	clientID    string
	oauth       clientcredentials.Config
	httpClient  *retryablehttp.Client
	cacheTokens bool
	now         func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient создаёт клиент провайдера с ограниченным числом повторов при временных ошибках.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.HTTPClient.Timeout = timeout
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = retryLogger{log: cfg.Logger.Sugar()}
	}

	return &Client{
		baseURL:  base,
		clientID: cfg.ClientID,
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     base + tokenPath,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient:  rc,
		cacheTokens: cfg.CacheTokens,
		now:         time.Now,
	}
}

// FetchChart запрашивает натальную карту у провайдера.
func (c *Client) FetchChart(ctx context.Context, chart ChartRequest) (*ProviderResponse, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chart)
	if err != nil {
		return nil, fmt.Errorf("encode chart request: %w", err)
	}

	token, cached, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.requestChart(ctx, token, body)
	if err != nil {
		return nil, err
	}

	// Кэшированный токен мог быть отозван раньше срока: получаем новый и повторяем один раз.
	if resp.StatusCode == http.StatusUnauthorized && cached {
		resp.Body.Close()
		c.invalidateToken(token)

		token, _, err = c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.requestChart(ctx, token, body)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, newProviderError("chart", resp))
	}

	var result ProviderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode chart response: %w", ErrRequestFailed, err)
	}

	return &result, nil
}

func (c *Client) requestChart(ctx context.Context, token string, body []byte) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chartPath, body)
	if err != nil {
		return nil, fmt.Errorf("create chart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Client-Id", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		closeBody(resp)
		return nil, c.transportError(ctx, "chart", err)
	}
	return resp, nil
}

// accessToken возвращает токен доступа и признак того, что он взят из кэша.
func (c *Client) accessToken(ctx context.Context) (string, bool, error) {
	if !c.cacheTokens {
		tok, err := c.requestToken(ctx)
		if err != nil {
			return "", false, err
		}
		return tok.AccessToken, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.tokenExpiry.IsZero() || c.now().Before(c.tokenExpiry)) {
		return c.token, true, nil
	}

	issued := c.now()
	tok, err := c.requestToken(ctx)
	if err != nil {
		return "", false, err
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Time{}
	if !tok.Expiry.IsZero() {
		// Срок жизни отсчитывается от собственных часов клиента.
		c.tokenExpiry = issued.Add(time.Until(tok.Expiry) - tokenExpirySkew)
	}

	return c.token, false, nil
}

func (c *Client) invalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == token {
		c.token = ""
		c.tokenExpiry = time.Time{}
	}
}

// requestToken получает токен по схеме client credentials через общий retryablehttp-клиент.
func (c *Client) requestToken(ctx context.Context) (*oauth2.Token, error) {
	tok, err := c.oauth.Token(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient.StandardClient()))
	if err == nil {
		return tok, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("token request: %w", ctxErr)
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		perr := &ProviderError{Op: "token", Body: truncateBody(rErr.Body)}
		if rErr.Response != nil {
			perr.StatusCode = rErr.Response.StatusCode
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, perr)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return nil, fmt.Errorf("%w: token request: %w", ErrUnavailable, err)
	}

	return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
}

// transportError отделяет отмену запроса вызывающей стороной от недоступности провайдера.
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s request: %w", op, ctxErr)
	}
	return fmt.Errorf("%w: %s request: %w", ErrUnavailable, op, err)
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

func newProviderError(op string, resp *http.Response) *ProviderError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ProviderError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       truncateBody(raw),
	}
}

func truncateBody(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return string(bytes.TrimSpace(raw))
}

// retryLogger передаёт сообщения retryablehttp в zap.
type retryLogger struct {
	log *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}
