package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getWithHeaders(t *testing.T, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestRateLimitBurstRejects(t *testing.T) {
	env := newTestEnv(t, serverOptions{
		cfg: func(c *Config) {
			c.GlobalRateLimit = 6 // refills far too slowly to matter here
			c.BurstRateLimit = 3
		},
	})
	url := env.http.URL + "/api/v1/translate/languages"

	for i := 0; i < 3; i++ {
		resp := getWithHeaders(t, url, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d should pass", i+1)
	}

	resp, err := http.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded. Please try again later.", errorDetail(t, resp))
}

func TestRateLimitSustainedViaStoreCounter(t *testing.T) {
	env := newTestEnv(t, serverOptions{
		cfg: func(c *Config) {
			c.GlobalRateLimit = 2
			c.BurstRateLimit = 100 // bucket never rejects; the shared counter must
		},
	})
	url := env.http.URL + "/api/v1/translate/languages"

	for i := 0; i < 2; i++ {
		resp := getWithHeaders(t, url, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d should pass", i+1)
	}

	resp := getWithHeaders(t, url, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimitExemptsHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, serverOptions{
		cfg: func(c *Config) {
			c.GlobalRateLimit = 1
			c.BurstRateLimit = 1
		},
	})

	for _, path := range []string{"/health", "/api/v1/health", "/metrics"} {
		for i := 0; i < 3; i++ {
			resp := getWithHeaders(t, env.http.URL+path, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode, "%s hit %d", path, i+1)
		}
	}

	// The same server still throttles a real endpoint.
	url := env.http.URL + "/api/v1/translate/languages"
	resp := getWithHeaders(t, url, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = getWithHeaders(t, url, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimitFailsOpenWhenStoreDown(t *testing.T) {
	env := newTestEnv(t, serverOptions{
		cfg: func(c *Config) {
			c.GlobalRateLimit = 2 // with the store up, the third request would be rejected
			c.BurstRateLimit = 100
		},
	})
	env.mr.Close()

	url := env.http.URL + "/api/v1/translate/languages"
	for i := 0; i < 4; i++ {
		resp := getWithHeaders(t, url, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d should fail open", i+1)
	}
}

func TestRateLimitIsolatesClientsByIP(t *testing.T) {
	env := newTestEnv(t, serverOptions{
		cfg: func(c *Config) {
			c.GlobalRateLimit = 6
			c.BurstRateLimit = 1
		},
	})
	url := env.http.URL + "/api/v1/translate/languages"

	resp := getWithHeaders(t, url, map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.9"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getWithHeaders(t, url, map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.9"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = getWithHeaders(t, url, map[string]string{"X-Forwarded-For": "10.0.0.2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientIPResolution(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "forwarded chain uses first hop",
			remoteAddr: "127.0.0.1:9999",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "real ip fallback",
			remoteAddr: "127.0.0.1:9999",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "remote addr strips port",
			remoteAddr: "192.0.2.7:1234",
			want:       "192.0.2.7",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.8",
			want:       "192.0.2.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestBucketSweepEvictsIdleClients(t *testing.T) {
	l := newIPLimiter(nil, 60, 10)

	l.bucketFor("10.0.0.1")
	l.bucketFor("10.0.0.2")
	require.Len(t, l.buckets, 2)

	// Age one bucket past the idle TTL and force a sweep window.
	l.mu.Lock()
	l.buckets["10.0.0.1"].lastSeen = l.buckets["10.0.0.1"].lastSeen.Add(-bucketIdleTTL - time.Minute)
	l.lastSweep = l.lastSweep.Add(-bucketSweepInterval - time.Minute)
	l.mu.Unlock()

	l.bucketFor("10.0.0.3")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "10.0.0.1")
	assert.Contains(t, l.buckets, "10.0.0.2")
	assert.Contains(t, l.buckets, "10.0.0.3")
}
