package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/metrics"
	"tululu-scraper/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns a redirect-counting client that never reuses connections,
// so a server-side close always surfaces as an error instead of a transparent retry
func testClient() *http.Client {
	client := NewClient(config.HTTPClientConfig{Timeout: 30 * time.Second, MaxRedirects: 3}, testLogger())
	client.Transport.(*http.Transport).DisableKeepAlives = true
	return client
}

func newTestFetcher(maxRetries int) *Fetcher {
	return NewFetcher(testClient(), testConfig(maxRetries), nil, nil, testLogger())
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		fmt.Fprintf(w, "attempt %d", idx+1)
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

// closeConnection drops the client connection without writing a response
func closeConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Error("response writer does not support hijacking")
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		t.Errorf("hijack failed: %v", err)
		return
	}
	conn.Close()
}

func TestFetch_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})

			page, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.statusCode, page.StatusCode)
			assert.False(t, page.Redirected)
			assert.Equal(t, "attempt 1", string(page.Body))
			assert.Equal(t, int32(1), attempts.Load())
		})
	}
}

func TestFetch_QueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/txt.php", r.URL.Path)
		fmt.Fprint(w, r.URL.Query().Get("id"))
	}))
	defer server.Close()

	page, err := newTestFetcher(0).Fetch(context.Background(), server.URL+"/txt.php", url.Values{"id": {"32168"}})

	require.NoError(t, err)
	assert.Equal(t, "32168", string(page.Body))
	assert.Contains(t, page.FinalURL, "id=32168")
}

func TestFetch_SetsUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.UserAgent())
	}))
	defer server.Close()

	cfg := testConfig(0)
	cfg.UserAgent = "tululu-test/0.1"
	page, err := NewFetcher(testClient(), cfg, nil, nil, testLogger()).Fetch(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, "tululu-test/0.1", string(page.Body))
}

func TestFetch_RedirectDetected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/b1/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "home page")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page, err := newTestFetcher(0).Fetch(context.Background(), server.URL+"/b1/", nil)

	require.NoError(t, err)
	assert.True(t, page.Redirected)
	assert.Equal(t, 1, page.RedirectHops)
	assert.Equal(t, server.URL+"/", page.FinalURL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
}

func TestFetch_RedirectLoopIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	_, err := newTestFetcher(0).Fetch(context.Background(), server.URL+"/a", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrNotFound))
	assert.False(t, errors.Is(err, utils.ErrConnection))
}

func TestFetch_ServerError_RetrySuccess(t *testing.T) {
	// 500 → 500 → 200 (succeeds on 3rd attempt)
	server, attempts := mockServer(t, []int{500, 500, 200})

	page, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_ServerError_AllRetriesFail(t *testing.T) {
	server, attempts := mockServer(t, []int{503})

	_, err := newTestFetcher(2).Fetch(context.Background(), server.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrRetryFailed))
	assert.True(t, errors.Is(err, utils.ErrServerHTTPError))
	assert.True(t, utils.IsHTTPStatusError(err))
	assert.True(t, utils.IsSkippable(err))
	assert.Equal(t, int32(3), attempts.Load()) // initial + 2 retries
}

func TestFetch_RateLimit_RetrySuccess(t *testing.T) {
	server, attempts := mockServer(t, []int{429, 200})

	page, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetch_NotFoundStatuses(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server, attempts := mockServer(t, []int{code})

			_, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrNotFound))
			assert.True(t, errors.Is(err, utils.ErrClientHTTPError))
			assert.Equal(t, int32(1), attempts.Load(), "not-found is never retried")
		})
	}
}

func TestFetch_ClientError_NoRetry(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusForbidden})

	_, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrClientHTTPError))
	assert.False(t, errors.Is(err, utils.ErrNotFound))
	assert.Equal(t, "HTTP_403", utils.CategorizeError(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetch_OtherStatus(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusNotModified})

	_, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrOtherHTTPError))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetch_ConnectionError_NotRetried(t *testing.T) {
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		closeConnection(t, w)
	}))
	defer server.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), server.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConnection))
	assert.False(t, utils.IsSkippable(err))
	assert.Equal(t, int32(1), attempts.Load(), "connection errors are left to the pipeline retry policy")
}

func TestFetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close() // Nothing listens on addr any more

	_, err := newTestFetcher(0).Fetch(context.Background(), addr, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConnection))
	assert.True(t, strings.HasPrefix(utils.CategorizeError(err), "Connection_"))
}

func TestFetch_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(3).Fetch(ctx, server.URL, nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetch_ContextTimeout_DuringBackoff(t *testing.T) {
	server, _ := mockServer(t, []int{500})

	cfg := &config.AppConfig{
		MaxRetries:        5,
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     5 * time.Second,
	}
	fetcher := NewFetcher(testClient(), cfg, nil, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.Fetch(ctx, server.URL, nil)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := newTestFetcher(0).Fetch(context.Background(), "://bad", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrParsing))
}

func TestFetch_RecordsMetrics(t *testing.T) {
	server, _ := mockServer(t, []int{500, 200})
	rec := metrics.NewRecorder()
	fetcher := NewFetcher(testClient(), testConfig(2), nil, rec, testLogger())

	_, err := fetcher.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(rec.Registry(), "tululu_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series each for the 500 and the 200")
}

func TestFetch_UsesRateLimiter(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	limiter := NewRateLimiter(100*time.Millisecond, testLogger())
	fetcher := NewFetcher(testClient(), testConfig(0), limiter, nil, testLogger())

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := fetcher.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRetryDelay(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(attempt, 10*time.Millisecond, 50*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 55*time.Millisecond, "attempt %d", attempt) // cap + 10% jitter
	}
}
