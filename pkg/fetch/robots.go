package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, parses and caches robots.txt per host
type RobotsHandler struct {
	fetcher       *Fetcher
	userAgent     string
	robotsCache   map[string]*robotstxt.RobotsData // host -> parsed data (or nil)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData retrieves robots.txt data for the target's host, using the cache or fetching.
// Returns nil when the file is missing, unreadable or unparsable.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host
	hostLog := rh.log.WithField("host", host)

	rh.robotsCacheMu.Lock()
	robotsData, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()
	if found {
		return robotsData
	}

	robotsURL := &url.URL{Scheme: target.Scheme, Host: host, Path: "/robots.txt"}
	if robotsURL.Scheme != "http" && robotsURL.Scheme != "https" {
		robotsURL.Scheme = "https"
	}
	robotsLog := hostLog.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	page, err := rh.fetcher.Fetch(ctx, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, assuming everything is allowed: %v", err)
		// Leave cancellation uncached so a later call can try again
		if ctx.Err() == nil {
			rh.store(host, nil)
		}
		return nil
	}

	data, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		robotsLog.Errorf("Error parsing robots.txt: %v", err)
		rh.store(host, nil)
		return nil
	}

	robotsLog.Info("Successfully fetched and parsed robots.txt")
	rh.store(host, data)
	return data
}

// Allowed reports whether the configured user agent may fetch target.
// Returns true when robots data could not be obtained.
func (rh *RobotsHandler) Allowed(ctx context.Context, target *url.URL) bool {
	robotsData := rh.GetRobotsData(ctx, target)
	if robotsData == nil {
		return true
	}
	return robotsData.TestAgent(target.RequestURI(), rh.userAgent)
}

func (rh *RobotsHandler) store(host string, data *robotstxt.RobotsData) {
	rh.robotsCacheMu.Lock()
	rh.robotsCache[host] = data
	rh.robotsCacheMu.Unlock()
}
