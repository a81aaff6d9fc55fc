package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tululu-scraper/pkg/utils"
)

const headingDelimiter = "::"

// BookPage holds the fields extracted from a book detail page
type BookPage struct {
	Title    string
	Author   string
	ImageURL string   // Absolute
	Genres   []string // Document order
	Comments []string // Document order
}

// ParseBookPage extracts title, author, cover, genres and comments from a detail page.
// A missing heading, cover container or genre container yields utils.ErrMalformedPage.
// Zero comments is valid.
func ParseBookPage(html []byte, baseURL *url.URL) (*BookPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err)
	}

	title, author, err := parseHeading(doc)
	if err != nil {
		return nil, err
	}

	imageURL, err := parseCover(doc, baseURL)
	if err != nil {
		return nil, err
	}

	genreBox := doc.Find("span.d_book").First()
	if genreBox.Length() == 0 {
		return nil, fmt.Errorf("%w: no genre container", utils.ErrMalformedPage)
	}
	genres := []string{}
	genreBox.Find("a").Each(func(_ int, a *goquery.Selection) {
		genres = append(genres, a.Text())
	})

	comments := []string{}
	doc.Find("body table .texts").Each(func(_ int, block *goquery.Selection) {
		comments = append(comments, block.Find("span").First().Text())
	})

	return &BookPage{
		Title:    title,
		Author:   author,
		ImageURL: imageURL,
		Genres:   genres,
		Comments: comments,
	}, nil
}

// parseHeading splits "Title :: Author" into its two parts
func parseHeading(doc *goquery.Document) (string, string, error) {
	h1 := doc.Find("body table h1").First()
	if h1.Length() == 0 {
		return "", "", fmt.Errorf("%w: no heading", utils.ErrMalformedPage)
	}

	parts := strings.Split(h1.Text(), headingDelimiter)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: heading %q has %d parts, want 2", utils.ErrMalformedPage, h1.Text(), len(parts))
	}
	// TrimSpace also strips the U+00A0 the site puts in front of titles
	title := strings.TrimSpace(parts[0])
	author := strings.TrimSpace(parts[1])
	if title == "" || author == "" {
		return "", "", fmt.Errorf("%w: heading %q has an empty title or author", utils.ErrMalformedPage, h1.Text())
	}
	return title, author, nil
}

func parseCover(doc *goquery.Document, baseURL *url.URL) (string, error) {
	img := doc.Find(".bookimage img").First()
	if img.Length() == 0 {
		return "", fmt.Errorf("%w: no cover image container", utils.ErrMalformedPage)
	}
	src, ok := img.Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" {
		return "", fmt.Errorf("%w: cover image has no src", utils.ErrMalformedPage)
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: cover src %q: %w", utils.ErrMalformedPage, src, err)
	}
	if baseURL == nil {
		return ref.String(), nil
	}
	return baseURL.ResolveReference(ref).String(), nil
}
