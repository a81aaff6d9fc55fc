package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/utils"
)

// WriteCatalog replaces the metadata file at path with books as an indented JSON array.
// Non-ASCII text and HTML characters are written verbatim.
func WriteCatalog(path string, books []models.Book) error {
	if books == nil {
		books = []models.Book{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(books); err != nil {
		return fmt.Errorf("%w: JSON encoding catalog: %w", utils.ErrParsing, err)
	}
	return writeFileAtomic(path, buf.Bytes(), 0644)
}

// ReadCatalog loads a metadata file written by WriteCatalog
func ReadCatalog(path string) ([]models.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading catalog '%s': %w", utils.ErrFilesystem, path, err)
	}
	var books []models.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("%w: JSON in catalog '%s': %w", utils.ErrParsing, path, err)
	}
	if books == nil {
		books = []models.Book{}
	}
	return books, nil
}
