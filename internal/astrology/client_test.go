package astrology

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/kundali-system/internal/model"
)

type fakeProvider struct {
	tokenStatus int
	chartStatus int
	chartBody   string

	tokenCalls atomic.Int32
	chartCalls atomic.Int32

	lastChart ChartRequest
	lastAuth  string
}

func (p *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := p.tokenCalls.Add(1)

		if r.Method != http.MethodPost {
			t.Errorf("token method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "client-id" || r.PostForm.Get("client_secret") != "client-secret" {
			t.Errorf("unexpected credentials: %v", r.PostForm)
		}

		if p.tokenStatus != 0 && p.tokenStatus != http.StatusOK {
			w.WriteHeader(p.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}

		writeToken(w, "token-"+string(rune('0'+n)), 3600)
	})

	mux.HandleFunc("/v2/astrology/kundli", func(w http.ResponseWriter, r *http.Request) {
		p.chartCalls.Add(1)
		p.lastAuth = r.Header.Get("Authorization")

		if r.Header.Get("X-Client-Id") != "client-id" {
			t.Errorf("X-Client-Id = %q", r.Header.Get("X-Client-Id"))
		}
		if err := json.NewDecoder(r.Body).Decode(&p.lastChart); err != nil {
			t.Errorf("decode chart request: %v", err)
		}

		if p.chartStatus != 0 && p.chartStatus != http.StatusOK {
			w.WriteHeader(p.chartStatus)
			_, _ = w.Write([]byte("upstream exploded"))
			return
		}

		body := p.chartBody
		if body == "" {
			body = `{"status":"ok","data":{"planets":[{"id":0,"name":"Sun","vedic_name":"Surya","longitude":30.5,"sign":"Taurus","degree":0.5,"house":2}],"houses":[{"id":1,"sign":"Aries"}]}}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	return mux
}

func writeToken(w http.ResponseWriter, token string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"access_token": token, "token_type": "Bearer"}
	if expiresIn > 0 {
		body["expires_in"] = expiresIn
	}
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(url string, cache bool) *Client {
	return NewClient(Config{
		BaseURL:      url,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
		CacheTokens:  cache,
	})
}

func testChartRequest() ChartRequest {
	lat, lon := 28.6139, 77.2090
	return NewChartRequest(model.BirthInput{
		DateOfBirth: "1990-05-15",
		TimeUnknown: true,
		Latitude:    &lat,
		Longitude:   &lon,
	})
}

func TestFetchChart_OK(t *testing.T) {
	p := &fakeProvider{}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	client := newTestClient(ts.URL, false)

	res, err := client.FetchChart(context.Background(), testChartRequest())
	require.NoError(t, err)

	require.Len(t, res.Data.Planets, 1)
	assert.Equal(t, "Sun", res.Data.Planets[0].Name)
	assert.Equal(t, Degree("0.5"), res.Data.Planets[0].Degree)
	require.NotNil(t, res.Data.Planets[0].House)
	assert.Equal(t, 2, *res.Data.Planets[0].House)

	assert.Equal(t, "Bearer token-1", p.lastAuth)
	assert.Equal(t, "1990-05-15 12:00", p.lastChart.Datetime)
	assert.Equal(t, 5.5, p.lastChart.Timezone)
	assert.Equal(t, 1, p.lastChart.Ayanamsa)
	assert.Equal(t, 28.6139, p.lastChart.Coordinates.Latitude)
	assert.Equal(t, 77.2090, p.lastChart.Coordinates.Longitude)
}

func TestFetchChart_TokenUnauthorized(t *testing.T) {
	p := &fakeProvider{tokenStatus: http.StatusUnauthorized}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	client := newTestClient(ts.URL, false)

	_, err := client.FetchChart(context.Background(), testChartRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "token", perr.Op)
	assert.Contains(t, perr.Body, "invalid_client")

	assert.EqualValues(t, 1, p.tokenCalls.Load(), "4xx must not be retried")
	assert.EqualValues(t, 0, p.chartCalls.Load())
}

func TestFetchChart_ServerErrorIsRetried(t *testing.T) {
	p := &fakeProvider{chartStatus: http.StatusBadGateway}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	client := newTestClient(ts.URL, false)

	_, err := client.FetchChart(context.Background(), testChartRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.NotErrorIs(t, err, ErrAuthFailed)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.Equal(t, "upstream exploded", perr.Body)

	assert.EqualValues(t, 3, p.chartCalls.Load(), "one attempt plus RetryMax retries")
}

func TestFetchChart_ClientErrorIsNotRetried(t *testing.T) {
	p := &fakeProvider{chartStatus: http.StatusBadRequest}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	client := newTestClient(ts.URL, false)

	_, err := client.FetchChart(context.Background(), testChartRequest())
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.EqualValues(t, 1, p.chartCalls.Load())
}

func TestFetchChart_MalformedBody(t *testing.T) {
	p := &fakeProvider{chartBody: `{"status":`}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	client := newTestClient(ts.URL, false)

	_, err := client.FetchChart(context.Background(), testChartRequest())
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestFetchChart_TokenCaching(t *testing.T) {
	p := &fakeProvider{}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	cached := newTestClient(ts.URL, true)
	for i := 0; i < 3; i++ {
		_, err := cached.FetchChart(context.Background(), testChartRequest())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, p.tokenCalls.Load())

	p.tokenCalls.Store(0)
	uncached := newTestClient(ts.URL, false)
	for i := 0; i < 3; i++ {
		_, err := uncached.FetchChart(context.Background(), testChartRequest())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, p.tokenCalls.Load())
}

func TestFetchChart_TokenExpiry(t *testing.T) {
	p := &fakeProvider{}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newTestClient(ts.URL, true)
	client.now = func() time.Time { return now }

	_, err := client.FetchChart(context.Background(), testChartRequest())
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = client.FetchChart(context.Background(), testChartRequest())
	require.NoError(t, err)

	assert.EqualValues(t, 2, p.tokenCalls.Load())
}

func TestFetchChart_TokenWithoutAccessToken(t *testing.T) {
	var chartCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token_type":"Bearer","expires_in":3600}`))
			return
		}
		chartCalls.Add(1)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL, true).FetchChart(context.Background(), testChartRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 0, chartCalls.Load())
}

func TestFetchChart_TokenWithoutExpiryIsCached(t *testing.T) {
	var tokenCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenCalls.Add(1)
			writeToken(w, "static", 0)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","data":{}}`))
	}))
	defer ts.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newTestClient(ts.URL, true)
	client.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := client.FetchChart(context.Background(), testChartRequest())
		require.NoError(t, err)
		now = now.Add(24 * time.Hour)
	}
	assert.EqualValues(t, 1, tokenCalls.Load())
}

func TestFetchChart_RevokedCachedTokenIsRefreshed(t *testing.T) {
	var chartCalls atomic.Int32
	var tokenCalls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			n := tokenCalls.Add(1)
			writeToken(w, "tok-"+string(rune('0'+n)), 3600)
		default:
			chartCalls.Add(1)
			if r.Header.Get("Authorization") == "Bearer tok-1" && chartCalls.Load() > 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok","data":{}}`))
		}
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, true)

	_, err := client.FetchChart(context.Background(), testChartRequest())
	require.NoError(t, err)

	_, err = client.FetchChart(context.Background(), testChartRequest())
	require.NoError(t, err)

	assert.EqualValues(t, 2, tokenCalls.Load())
	assert.EqualValues(t, 3, chartCalls.Load())
}

func TestFetchChart_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	client := NewClient(Config{
		BaseURL:  url,
		ClientID: "client-id",
		Timeout:  200 * time.Millisecond,
		RetryMax: 0,
	})

	_, err := client.FetchChart(context.Background(), testChartRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrAuthFailed)
}

func TestFetchChart_CanceledContext(t *testing.T) {
	p := &fakeProvider{}
	ts := httptest.NewServer(p.handler(t))
	defer ts.Close()

	client := newTestClient(ts.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchChart(ctx, testChartRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestFetchChart_NotConfigured(t *testing.T) {
	var client *Client
	_, err := client.FetchChart(context.Background(), testChartRequest())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(Config{}).FetchChart(context.Background(), testChartRequest())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDegreeUnmarshal(t *testing.T) {
	var p struct {
		A Degree `json:"a"`
		B Degree `json:"b"`
		C Degree `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.345","b":7.5,"c":null}`), &p))
	assert.Equal(t, Degree("12.345"), p.A)
	assert.Equal(t, Degree("7.5"), p.B)
	assert.Equal(t, Degree(""), p.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &p))
}
