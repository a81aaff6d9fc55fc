package models

import (
	"fmt"
	"strings"
	"time"

	"tululu-scraper/pkg/utils"
)

// Book describes one successfully scraped book. It is immutable after NewBook
// returns and is serialized, in field order, into the metadata file.
type Book struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	ImageURL  string   `json:"image_url"`
	Genres    []string `json:"genres"`
	Comments  []string `json:"comments"`
	BookPath  string   `json:"book_path"`  // Path as written; empty when text was skipped
	ImagePath string   `json:"image_path"` // Path as written; empty when images were skipped
}

// NewBook builds a Book and enforces the identity invariant: id, title and author are non-empty.
// Nil slices are normalized to empty ones so the metadata file always carries arrays.
func NewBook(id, title, author, imageURL string, genres, comments []string, bookPath, imagePath string) (*Book, error) {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if id == "" || title == "" || author == "" {
		return nil, fmt.Errorf("%w: book needs id, title and author (id=%q title=%q author=%q)",
			utils.ErrMalformedPage, id, title, author)
	}
	if genres == nil {
		genres = []string{}
	}
	if comments == nil {
		comments = []string{}
	}
	return &Book{
		ID:        id,
		Title:     title,
		Author:    author,
		ImageURL:  imageURL,
		Genres:    genres,
		Comments:  comments,
		BookPath:  bookPath,
		ImagePath: imagePath,
	}, nil
}

// CatalogPage is the set of detail-page links found on one listing page
type CatalogPage struct {
	URL       string
	Index     int
	BookLinks []string
}

// DisplayPage is one rendered chunk of the catalog
type DisplayPage struct {
	Number int      // 1-based
	Rows   [][]Book // Each row holds at most the configured number of columns
	Total  int      // Total number of display pages
}

// Books flattens the rows of a display page
func (p DisplayPage) Books() []Book {
	var books []Book
	for _, row := range p.Rows {
		books = append(books, row...)
	}
	return books
}

// OutcomeEntry stores the result of processing one book URL in the outcome store
type OutcomeEntry struct {
	Status      BookStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"`  // Error category (on skip or failure)
	BookURL     string     `json:"book_url"`
	BookID      string     `json:"book_id,omitempty"`
	TextSHA256  string     `json:"text_sha256,omitempty"` // Hash of the saved text (on success)
	RunID       string     `json:"run_id"`
	LastAttempt time.Time  `json:"last_attempt"`
	Attempts    int        `json:"attempts"`
}

// RunMetadata summarizes one scrape run
type RunMetadata struct {
	RunID         string                 `yaml:"run_id"`
	Mode          string                 `yaml:"mode"` // "pages" or "ids"
	RangeStart    int                    `yaml:"range_start"`
	RangeEnd      int                    `yaml:"range_end"`
	StartTime     time.Time              `yaml:"start_time"`
	EndTime       time.Time              `yaml:"end_time"`
	BooksSaved    int                    `yaml:"books_saved"`
	StatusCounts  map[string]int         `yaml:"status_counts,omitempty"`
	CatalogFile   string                 `yaml:"catalog_file"`
	Interrupted   bool                   `yaml:"interrupted,omitempty"`
	FatalError    string                 `yaml:"fatal_error,omitempty"`
	Configuration map[string]interface{} `yaml:"configuration,omitempty"` // Flexible dump of the effective AppConfig
}
