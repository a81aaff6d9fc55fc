package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tululu-scraper/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), "tululu.org", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func outcome(url string, status models.BookStatus, errType string) *models.OutcomeEntry {
	return &models.OutcomeEntry{
		Status:      status,
		ErrorType:   errType,
		BookURL:     url,
		RunID:       "run-1",
		LastAttempt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Attempts:    1,
	}
}

// storeFactories runs each test against both OutcomeStore implementations
func storeFactories(t *testing.T) map[string]func() OutcomeStore {
	return map[string]func() OutcomeStore{
		"badger": func() OutcomeStore { return newTestStore(t) },
		"memory": func() OutcomeStore { return NewMemoryStore() },
	}
}

func TestOutcomeStore_RecordAndCheck(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()

			status, entry, err := store.CheckOutcome("https://tululu.org/b1/")
			require.NoError(t, err)
			assert.Equal(t, models.BookStatusUnset, status)
			assert.Nil(t, entry)

			require.NoError(t, store.RecordOutcome("https://tululu.org/b1/", outcome("", models.BookStatusNotFound, "NotFound")))

			status, entry, err = store.CheckOutcome("https://tululu.org/b1/")
			require.NoError(t, err)
			assert.Equal(t, models.BookStatusNotFound, status)
			require.NotNil(t, entry)
			assert.Equal(t, "NotFound", entry.ErrorType)
			assert.Equal(t, "https://tululu.org/b1/", entry.BookURL, "book URL filled from key")

			// Later outcomes replace earlier ones
			retried := outcome("https://tululu.org/b1/", models.BookStatusSuccess, "")
			retried.Attempts = 3
			require.NoError(t, store.RecordOutcome("https://tululu.org/b1/", retried))
			status, entry, err = store.CheckOutcome("https://tululu.org/b1/")
			require.NoError(t, err)
			assert.Equal(t, models.BookStatusSuccess, status)
			assert.Equal(t, 3, entry.Attempts)
		})
	}
}

func TestOutcomeStore_CountAndReport(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()

			require.NoError(t, store.RecordOutcome("https://tululu.org/b1/", outcome("", models.BookStatusSuccess, "")))
			require.NoError(t, store.RecordOutcome("https://tululu.org/b2/", outcome("", models.BookStatusNoText, "NoText")))
			require.NoError(t, store.RecordOutcome("https://tululu.org/b3/", outcome("", models.BookStatusSuccess, "")))

			counts, err := store.CountByStatus(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, counts[models.BookStatusSuccess])
			assert.Equal(t, 1, counts[models.BookStatusNoText])

			var buf bytes.Buffer
			require.NoError(t, store.WriteReport(ctx, &buf))
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 3)
			assert.Equal(t, "success\t-\t1\t2024-05-01T12:00:00Z\thttps://tululu.org/b1/", lines[0])
			assert.Equal(t, "no_text\tNoText\t1\t2024-05-01T12:00:00Z\thttps://tululu.org/b2/", lines[1])
		})
	}
}

func TestOutcomeStore_ListHonoursCancellation(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			require.NoError(t, store.RecordOutcome("https://tululu.org/b1/", outcome("", models.BookStatusSuccess, "")))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := store.ListOutcomes(ctx, func(models.OutcomeEntry) error { return nil })
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestNewBadgerStore_KeepAndWipe(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()

	store1, err := NewBadgerStore(dir, "tululu.org", false, logger)
	require.NoError(t, err)
	require.NoError(t, store1.RecordOutcome("https://tululu.org/b5/", outcome("", models.BookStatusSuccess, "")))
	require.NoError(t, store1.Close())

	store2, err := NewBadgerStore(dir, "tululu.org", true, logger)
	require.NoError(t, err)
	status, _, err := store2.CheckOutcome("https://tululu.org/b5/")
	require.NoError(t, err)
	assert.Equal(t, models.BookStatusSuccess, status, "kept store still has the entry")
	require.NoError(t, store2.Close())

	store3, err := NewBadgerStore(dir, "tululu.org", false, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store3.Close() })
	status, _, err = store3.CheckOutcome("https://tululu.org/b5/")
	require.NoError(t, err)
	assert.Equal(t, models.BookStatusUnset, status, "fresh run wipes old outcomes")
}

func TestBadgerStore_CloseAndGC(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.RunGC())
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "second close is a no-op")
	assert.NoError(t, store.RunGC(), "GC on a closed store is a no-op")
}
