package storage

import (
	"context"
	"io"

	"tululu-scraper/pkg/models"
)

// OutcomeStore records what happened to each book URL during a run
type OutcomeStore interface {
	// RecordOutcome stores entry under the book URL, replacing any earlier entry
	RecordOutcome(bookURL string, entry *models.OutcomeEntry) error

	// CheckOutcome returns the recorded status and entry for a book URL.
	// An unknown URL returns BookStatusUnset and a nil entry.
	CheckOutcome(bookURL string) (models.BookStatus, *models.OutcomeEntry, error)

	// ListOutcomes calls fn for every recorded entry in key order
	ListOutcomes(ctx context.Context, fn func(entry models.OutcomeEntry) error) error

	// CountByStatus tallies recorded entries by status
	CountByStatus(ctx context.Context) (map[models.BookStatus]int, error)

	// WriteReport writes one tab-separated line per entry
	WriteReport(ctx context.Context, w io.Writer) error

	// Close cleanly closes the store
	Close() error
}
