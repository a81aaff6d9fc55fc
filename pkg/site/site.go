// Package site knows the tululu.org URL layout and its convention of
// redirecting unknown resources to the landing page instead of returning 404.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/fetch"
	"tululu-scraper/pkg/utils"
)

// PageFetcher is the subset of fetch.Fetcher the site needs
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, query url.Values) (*fetch.Page, error)
}

// RobotsChecker reports whether a URL may be fetched
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

var bookPathRe = regexp.MustCompile(`^/b(\d+)/?$`)

// Site wraps a PageFetcher with tululu URL building and existence checks
type Site struct {
	base     *url.URL
	category int
	fetcher  PageFetcher
	robots   RobotsChecker // nil disables robots checks
	log      *logrus.Entry
}

// New creates a Site rooted at baseURL. robots may be nil.
func New(baseURL string, category int, fetcher PageFetcher, robots RobotsChecker, log *logrus.Entry) (*Site, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base URL '%s' is not absolute", utils.ErrConfigValidation, baseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	return &Site{
		base:     base,
		category: category,
		fetcher:  fetcher,
		robots:   robots,
		log:      log,
	}, nil
}

func (s *Site) resolve(ref string) string {
	return s.base.ResolveReference(&url.URL{Path: ref}).String()
}

// BaseURL returns a copy of the site root
func (s *Site) BaseURL() *url.URL {
	u := *s.base
	return &u
}

// BookURL returns the detail page URL for a book id
func (s *Site) BookURL(id int) string {
	return s.resolve(fmt.Sprintf("b%d/", id))
}

// ListingURL returns the URL of one page of the configured category
func (s *Site) ListingURL(page int) string {
	return s.resolve(fmt.Sprintf("l%d/%d/", s.category, page))
}

// TextURL returns the plain-text download endpoint; the book id goes in the "id" query parameter
func (s *Site) TextURL() string {
	return s.resolve("txt.php")
}

// FetchBookPage fetches the detail page for id
func (s *Site) FetchBookPage(ctx context.Context, id int) (*fetch.Page, error) {
	return s.FetchBookPageURL(ctx, s.BookURL(id))
}

// FetchBookPageURL fetches a detail page. A redirected response means the book does not exist.
func (s *Site) FetchBookPageURL(ctx context.Context, bookURL string) (*fetch.Page, error) {
	return s.get(ctx, bookURL, nil, "book page")
}

// FetchText downloads the plain text of a book. A redirect means there is no text.
func (s *Site) FetchText(ctx context.Context, id string) (*fetch.Page, error) {
	return s.get(ctx, s.TextURL(), url.Values{"id": {id}}, "book text")
}

// FetchListing fetches one category listing page
func (s *Site) FetchListing(ctx context.Context, page int) (*fetch.Page, error) {
	return s.get(ctx, s.ListingURL(page), nil, "listing page")
}

// FetchAsset downloads a static file such as a cover image. Redirects are followed normally.
func (s *Site) FetchAsset(ctx context.Context, assetURL string) (*fetch.Page, error) {
	return s.fetcher.Fetch(ctx, assetURL, nil)
}

// Exists reports whether a book with id has a detail page
func (s *Site) Exists(ctx context.Context, id int) (bool, error) {
	_, err := s.FetchBookPage(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, utils.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Site) get(ctx context.Context, rawURL string, query url.Values, what string) (*fetch.Page, error) {
	if s.robots != nil {
		target, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, rawURL, err)
		}
		if !s.robots.Allowed(ctx, target) {
			return nil, fmt.Errorf("%w: %s %s", utils.ErrRobotsDisallowed, what, rawURL)
		}
	}

	page, err := s.fetcher.Fetch(ctx, rawURL, query)
	if err != nil {
		return nil, err
	}
	if page.Redirected {
		s.log.WithFields(logrus.Fields{"url": rawURL, "final_url": page.FinalURL}).Debugf("%s redirected, treating as missing", what)
		return nil, fmt.Errorf("%w: %s %s redirected to %s", utils.ErrNotFound, what, rawURL, page.FinalURL)
	}
	return page, nil
}

// BookIDFromURL extracts the numeric id from a detail page URL such as https://tululu.org/b239/
func BookIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	m := bookPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("%w: URL '%s' is not a book page", utils.ErrParsing, rawURL)
	}
	if _, err := strconv.Atoi(m[1]); err != nil {
		return "", fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	return m[1], nil
}
