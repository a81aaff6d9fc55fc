package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/parse"
	"tululu-scraper/pkg/site"
	"tululu-scraper/pkg/storage"
	"tululu-scraper/pkg/utils"
)

const (
	booksDir    = "books"
	imagesDir   = "images"
	commentsDir = "comments"
)

// BookProcessor runs fetch, parse and save for a single detail page
type BookProcessor struct {
	site       *site.Site
	assets     *storage.AssetStore
	skipText   bool
	skipImages bool
	log        *logrus.Entry
}

// NewBookProcessor creates a BookProcessor writing under assets
func NewBookProcessor(st *site.Site, assets *storage.AssetStore, skipText, skipImages bool, log *logrus.Entry) *BookProcessor {
	return &BookProcessor{
		site:       st,
		assets:     assets,
		skipText:   skipText,
		skipImages: skipImages,
		log:        log,
	}
}

// SavedBook is a processed catalog entry plus the fingerprint of its saved text
type SavedBook struct {
	Book       *models.Book
	TextSHA256 string // Empty when text was skipped
}

// Process downloads one book and returns its catalog entry.
//
// Errors keep their class: utils.ErrNotFound for a missing detail page,
// utils.ErrMalformedPage for unparsable markup, utils.ErrNoText when the text
// endpoint has nothing, utils.ErrConnection for transport failures (the caller
// may rerun the whole book) and utils.ErrFilesystem when a file can't be written.
func (p *BookProcessor) Process(ctx context.Context, bookURL string) (*SavedBook, error) {
	bookLog := p.log.WithField("book_url", bookURL)

	id, err := site.BookIDFromURL(bookURL)
	if err != nil {
		return nil, err
	}

	page, err := p.site.FetchBookPageURL(ctx, bookURL)
	if err != nil {
		return nil, err
	}

	pageURL, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		pageURL = p.site.BaseURL()
	}
	parsed, err := parse.ParseBookPage(page.Body, pageURL)
	if err != nil {
		if errors.Is(err, utils.ErrParsing) {
			return nil, fmt.Errorf("%w: %w", utils.ErrMalformedPage, err)
		}
		return nil, err
	}
	bookLog = bookLog.WithFields(logrus.Fields{"book_id": id, "title": parsed.Title})

	var bookPath, imagePath, textSum string

	if !p.skipText {
		bookPath, textSum, err = p.saveText(ctx, id, parsed.Title)
		if err != nil {
			return nil, err
		}
		bookLog.WithField("path", bookPath).Debug("Saved book text")
	}

	if !p.skipImages && parsed.ImageURL != "" {
		imagePath, err = p.saveImage(ctx, parsed.ImageURL)
		if err != nil {
			return nil, err
		}
		bookLog.WithField("path", imagePath).Debug("Saved cover image")
	}

	if _, err := p.assets.SaveLines(parsed.Comments, path.Join(commentsDir, id+"_comments.txt")); err != nil {
		return nil, err
	}

	book, err := models.NewBook(id, parsed.Title, parsed.Author, parsed.ImageURL, parsed.Genres, parsed.Comments, bookPath, imagePath)
	if err != nil {
		return nil, err
	}
	bookLog.Info("Book saved")
	return &SavedBook{Book: book, TextSHA256: textSum}, nil
}

// saveText stores the text as books/{id}.{title}.txt and returns its path and hash.
// The name is sanitized as a single path component.
func (p *BookProcessor) saveText(ctx context.Context, id, title string) (string, string, error) {
	page, err := p.site.FetchText(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrConnection) || !utils.IsSkippable(err) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: id %s: %w", utils.ErrNoText, id, err)
	}
	if len(page.Body) == 0 {
		return "", "", fmt.Errorf("%w: id %s: empty response", utils.ErrNoText, id)
	}

	text, err := decodeText(page.Body, page.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("%w: id %s: %w", utils.ErrNoText, id, err)
	}
	name := utils.SanitizeFilename(id+"."+title) + ".txt"
	saved, err := p.assets.Save(text, path.Join(booksDir, name))
	if err != nil {
		return "", "", err
	}
	return saved, utils.CalculateBytesSHA256(text), nil
}

func (p *BookProcessor) saveImage(ctx context.Context, imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("%w: image URL '%s': %w", utils.ErrMalformedPage, imageURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("%w: image URL '%s' has no file name", utils.ErrMalformedPage, imageURL)
	}

	page, err := p.site.FetchAsset(ctx, imageURL)
	if err != nil {
		return "", err
	}
	return p.assets.Save(page.Body, path.Join(imagesDir, name))
}
