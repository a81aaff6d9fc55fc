package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/metrics"
	"tululu-scraper/pkg/utils"
)

// Page is a fully read HTTP response
type Page struct {
	StatusCode   int
	FinalURL     string // URL after any redirects
	Redirected   bool   // True when one or more redirects were followed
	RedirectHops int
	Body         []byte
	ContentType  string
}

// Fetcher issues GET requests with per-host pacing and bounded retries for 5xx/429.
// Transport failures are not retried here: they surface as utils.ErrConnection
// so the pipeline can pause and resume the whole unit.
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig
	limiter *RateLimiter
	metrics *metrics.Recorder
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance. limiter and rec may be nil.
func NewFetcher(client *http.Client, cfg *config.AppConfig, limiter *RateLimiter, rec *metrics.Recorder, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		metrics: rec,
		log:     log,
	}
}

// Fetch GETs rawURL with optional query parameters and reads the whole body.
// Non-2xx responses return an error wrapping one of the HTTP status sentinels;
// 404 and 410 additionally wrap utils.ErrNotFound.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, query url.Values) (*Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	if len(query) > 0 {
		q := target.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	ctx, counter := withRedirectCounter(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", f.cfg.EffectiveUserAgent())

	resp, err := f.FetchWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w: %s: %w", utils.ErrConnection, utils.ErrResponseBodyRead, target, err)
	}

	page := &Page{
		StatusCode:   resp.StatusCode,
		FinalURL:     resp.Request.URL.String(),
		Redirected:   counter.hops > 0,
		RedirectHops: counter.hops,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
	}
	if page.Redirected {
		f.log.WithFields(logrus.Fields{"url": target.String(), "final_url": page.FinalURL, "hops": page.RedirectHops}).
			Debug("Response was redirected")
	}
	return page, nil
}

// FetchWithRetry performs req, retrying 5xx and 429 responses with exponential backoff and jitter.
// On success the caller must close the response body.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	reqLog := f.log.WithField("url", req.URL.String())

	maxRetries := f.cfg.MaxRetries
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			reqLog.Warnf("Context cancelled before attempt %d: %v", attempt, err)
			return nil, err
		}

		if attempt > 0 {
			finalDelay := retryDelay(attempt, initialRetryDelay, maxRetryDelay)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": finalDelay}).Warn("Retrying request...")

			timer := time.NewTimer(finalDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				reqLog.Warnf("Context cancelled during retry sleep: %v", ctx.Err())
				return nil, ctx.Err()
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, req.URL.Host); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				f.metrics.ObserveRequest("canceled", time.Since(start))
				return nil, ctxErr
			}
			if errors.Is(err, errTooManyRedirects) {
				f.metrics.ObserveRequest("redirect_loop", time.Since(start))
				return nil, fmt.Errorf("%w: %s: %w", utils.ErrNotFound, req.URL, err)
			}
			f.metrics.ObserveRequest("connection_error", time.Since(start))
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			return nil, fmt.Errorf("%w: %w", utils.ErrConnection, err)
		}

		statusCode := resp.StatusCode
		f.metrics.ObserveRequest(strconv.Itoa(statusCode), time.Since(start))
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, http.StatusText(statusCode))
			drainAndClose(resp)
			continue

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))
			drainAndClose(resp)
			continue

		case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
			resLog.Debug("Resource not found")
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: %w: status %d %s", utils.ErrNotFound, utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))

		case statusCode >= 400 && statusCode < 500:
			resLog.Warn("Client error (4xx), not retrying")
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, http.StatusText(statusCode))
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return nil, utils.ErrRetryFailed
}

// retryDelay returns initial * 2^(attempt-1) capped at maxDelay, with +/- 10% jitter
func retryDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay <= 0 || (maxDelay > 0 && delay > maxDelay) {
		delay = maxDelay
	}

	var jitter time.Duration
	if delay >= 5 {
		jitter = time.Duration(rand.Int63n(int64(delay)/5)) - (delay / 10)
	}
	if final := delay + jitter; final > 0 {
		return final
	}
	return 0
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
