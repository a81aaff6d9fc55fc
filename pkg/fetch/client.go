package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"

	"tululu-scraper/pkg/config"

	"github.com/sirupsen/logrus"
)

// errTooManyRedirects is returned by CheckRedirect once the hop limit is reached
var errTooManyRedirects = errors.New("too many redirects")

type redirectCounterKey struct{}

// redirectCounter records how many hops a single request followed
type redirectCounter struct {
	hops int
}

// withRedirectCounter attaches a fresh hop counter to ctx
func withRedirectCounter(ctx context.Context) (context.Context, *redirectCounter) {
	counter := &redirectCounter{}
	return context.WithValue(ctx, redirectCounterKey{}, counter), counter
}

// NewClient creates a new HTTP client based on the provided configuration.
// Redirects are followed, and each hop is counted on the request context so
// callers can tell a redirected response from a direct one.
func NewClient(cfg config.HTTPClientConfig, log *logrus.Entry) *http.Client {
	log.Debug("Initializing HTTP client...")

	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20,
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	return &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     transport,
		CheckRedirect: checkRedirect(maxRedirects, log),
	}
}

// checkRedirect builds the CheckRedirect hook shared by NewClient and tests
func checkRedirect(maxRedirects int, log *logrus.Entry) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if counter, ok := req.Context().Value(redirectCounterKey{}).(*redirectCounter); ok {
			counter.hops = len(via)
		}
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
		return nil
	}
}
