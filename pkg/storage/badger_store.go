package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/log"
	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/utils"
)

const (
	bookKeyPrefix = "book:"      // Prefix for book URL keys in DB
	outcomeDBDir  = "outcome_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements OutcomeStore using BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens the outcome database for siteHost under stateDir.
// Unless keep is set, any database left by an earlier run is removed first.
func NewBadgerStore(stateDir, siteHost string, keep bool, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(siteHost)+"_"+outcomeDBDir)

	if !keep {
		logger.Debugf("Removing outcome database from previous run: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove outcome database %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogger(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	logger.Infof("Outcome database ready at %s", dbPath)
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// RecordOutcome implements OutcomeStore
func (s *BadgerStore) RecordOutcome(bookURL string, entry *models.OutcomeEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil outcome for '%s'", utils.ErrDatabase, bookURL)
	}
	if entry.BookURL == "" {
		entry.BookURL = bookURL
	}
	key := []byte(bookKeyPrefix + bookURL)

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: marshal outcome for key '%s': %w", utils.ErrParsing, key, err)
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, value))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB update error in RecordOutcome: %v", err)
		return fmt.Errorf("%w: setting outcome for key '%s': %w", utils.ErrDatabase, key, err)
	}

	s.log.Debugf("Recorded outcome '%s' for %s", entry.Status, bookURL)
	return nil
}

// CheckOutcome implements OutcomeStore
func (s *BadgerStore) CheckOutcome(bookURL string) (models.BookStatus, *models.OutcomeEntry, error) {
	key := []byte(bookKeyPrefix + bookURL)
	var entry *models.OutcomeEntry

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: getting key '%s': %w", utils.ErrDatabase, key, errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.OutcomeEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				return fmt.Errorf("%w: decoding outcome for key '%s': %w", utils.ErrParsing, key, errJSON)
			}
			entry = &decoded
			return nil
		})
	})
	if err != nil {
		return models.BookStatusUnset, nil, err
	}
	if entry == nil {
		return models.BookStatusUnset, nil, nil
	}
	return entry.Status, entry, nil
}

// ListOutcomes implements OutcomeStore
func (s *BadgerStore) ListOutcomes(ctx context.Context, fn func(entry models.OutcomeEntry) error) error {
	prefix := []byte(bookKeyPrefix)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry models.OutcomeEntry
			errValue := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if errValue != nil {
				s.log.Warnf("Skipping unreadable outcome '%s': %v", item.Key(), errValue)
				continue
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountByStatus implements OutcomeStore
func (s *BadgerStore) CountByStatus(ctx context.Context) (map[models.BookStatus]int, error) {
	counts := make(map[models.BookStatus]int)
	err := s.ListOutcomes(ctx, func(entry models.OutcomeEntry) error {
		counts[entry.Status]++
		return nil
	})
	return counts, err
}

// WriteReport implements OutcomeStore.
// Columns: status, error type, attempts, last attempt (RFC 3339), book URL.
func (s *BadgerStore) WriteReport(ctx context.Context, w io.Writer) error {
	return writeReport(ctx, s, w)
}

func writeReport(ctx context.Context, store OutcomeStore, w io.Writer) error {
	writer := bufio.NewWriter(w)
	var writeErr error
	written := 0

	iterErr := store.ListOutcomes(ctx, func(entry models.OutcomeEntry) error {
		errorType := entry.ErrorType
		if errorType == "" {
			errorType = "-"
		}
		_, err := fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			entry.Status, errorType, entry.Attempts, entry.LastAttempt.UTC().Format(time.RFC3339), entry.BookURL)
		if err != nil && writeErr == nil {
			writeErr = err
		}
		written++
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if iterErr != nil {
		return iterErr
	}
	if writeErr != nil {
		return fmt.Errorf("%w: writing outcome report: %w", utils.ErrFilesystem, writeErr)
	}
	return nil
}

// RunGC runs value log garbage collection until badger reports nothing to rewrite
func (s *BadgerStore) RunGC() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		return fmt.Errorf("%w: value log GC: %w", utils.ErrDatabase, err)
	}
}

// Close implements OutcomeStore
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing outcome DB: %v", err)
		return err
	}
	s.log.Debug("Outcome DB closed")
	return nil
}
