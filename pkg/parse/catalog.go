package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/utils"
)

// ListBookLinks returns the absolute detail-page links of a category listing,
// in document order without duplicates. A listing with no books yields an empty slice.
func ListBookLinks(html []byte, baseURL *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err)
	}

	links := []string{}
	seen := make(map[string]struct{})
	doc.Find("body table.tabs div.bookimage").Each(func(_ int, thumb *goquery.Selection) {
		href, ok := thumb.Find("a[href]").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		resolved, err := ResolveLink(baseURL, href)
		if err != nil {
			return
		}
		key := NormalizeURL(resolved)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, resolved.String())
	})
	return links, nil
}

// ParseCatalogPage builds the CatalogPage for listing page number index
func ParseCatalogPage(html []byte, pageURL string, index int) (*models.CatalogPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, pageURL, err)
	}
	links, err := ListBookLinks(html, base)
	if err != nil {
		return nil, err
	}
	return &models.CatalogPage{URL: pageURL, Index: index, BookLinks: links}, nil
}
