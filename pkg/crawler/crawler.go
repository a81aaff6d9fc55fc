package crawler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/fetch"
	"tululu-scraper/pkg/metrics"
	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/parse"
	"tululu-scraper/pkg/site"
	"tululu-scraper/pkg/storage"
	"tululu-scraper/pkg/utils"
)

const (
	ModePages = "pages"
	ModeIDs   = "ids"
)

// Crawler walks listing pages or id ranges one book at a time and builds the catalog
type Crawler struct {
	cfg     *config.AppConfig
	site    *site.Site
	books   *BookProcessor
	store   storage.OutcomeStore
	output  *OutputManager
	retry   fetch.RetryPolicy
	metrics *metrics.Recorder
	runID   string
	log     *logrus.Entry

	progressOut io.Writer
	bar         *progressbar.ProgressBar
}

// CrawlerOptions holds optional settings for NewCrawlerWithOptions
type CrawlerOptions struct {
	RunID    string    // Generated when empty
	Progress io.Writer // Progress bar destination; nil disables the bar
}

// NewCrawler creates a Crawler with a generated run id and no progress bar
func NewCrawler(cfg *config.AppConfig, st *site.Site, assets *storage.AssetStore, store storage.OutcomeStore, rec *metrics.Recorder, log *logrus.Entry) *Crawler {
	return NewCrawlerWithOptions(cfg, st, assets, store, rec, log, CrawlerOptions{})
}

// NewCrawlerWithOptions creates a Crawler. store may be nil, in which case outcomes are kept in memory.
func NewCrawlerWithOptions(cfg *config.AppConfig, st *site.Site, assets *storage.AssetStore, store storage.OutcomeStore, rec *metrics.Recorder, log *logrus.Entry, opts CrawlerOptions) *Crawler {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runLog := log.WithField("run_id", runID)
	if store == nil {
		store = storage.NewMemoryStore()
	}

	retry := fetch.NewRetryPolicy(cfg.ConnectionRetry)
	retry.OnPause = func(int, time.Duration, error) { rec.IncRetryPause() }

	return &Crawler{
		cfg:         cfg,
		site:        st,
		books:       NewBookProcessor(st, assets, cfg.SkipText, cfg.SkipImages, runLog),
		store:       store,
		output:      NewOutputManager(cfg, runID, rec, runLog),
		retry:       retry,
		metrics:     rec,
		runID:       runID,
		log:         runLog,
		progressOut: opts.Progress,
	}
}

// RunID returns the id attached to every log line and outcome of this crawler
func (c *Crawler) RunID() string {
	return c.runID
}

// Books returns the catalog collected so far
func (c *Crawler) Books() []models.Book {
	return c.output.Books()
}

// RunPages processes listing pages start..end (inclusive) of the configured category.
// The catalog is written even when the run ends early.
func (c *Crawler) RunPages(ctx context.Context, start, end int) error {
	c.output.Begin(ModePages, start, end)
	c.startProgress(end-start+1, "listing pages")
	c.log.WithFields(logrus.Fields{"start_page": start, "end_page": end, "category": c.cfg.Category}).Info("Scrape of listing pages starting")
	startTime := time.Now()

	var runErr error
	for page := start; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := c.processListingPage(ctx, page); err != nil {
			runErr = err
			break
		}
		c.advanceProgress()
		if c.cfg.CatalogFlush == config.FlushPerPage {
			if err := c.output.FlushCatalog(); err != nil {
				runErr = err
				break
			}
		}
	}

	return c.finish(runErr, startTime)
}

// RunIDs processes detail pages b{startID}..b{endID} (inclusive)
func (c *Crawler) RunIDs(ctx context.Context, startID, endID int) error {
	c.output.Begin(ModeIDs, startID, endID)
	c.startProgress(endID-startID+1, "books")
	c.log.WithFields(logrus.Fields{"start_id": startID, "end_id": endID}).Info("Scrape of book ids starting")
	startTime := time.Now()

	var runErr error
	for id := startID; id <= endID; id++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		saved, err := c.processBook(ctx, c.site.BookURL(id), c.log.WithField("book_id", id))
		if err != nil {
			runErr = err
			break
		}
		c.advanceProgress()
		if saved && c.cfg.CatalogFlush == config.FlushPerPage {
			if err := c.output.FlushCatalog(); err != nil {
				runErr = err
				break
			}
		}
	}

	return c.finish(runErr, startTime)
}

func (c *Crawler) finish(runErr error, startTime time.Time) error {
	if c.bar != nil {
		_ = c.bar.Finish()
	}
	finishErr := c.output.Finish(runErr)

	fields := logrus.Fields{"duration": time.Since(startTime).Round(time.Millisecond), "books": len(c.output.Books())}
	switch {
	case runErr == nil:
		c.log.WithFields(fields).Info("Scrape finished")
	case isInterrupted(runErr):
		c.log.WithFields(fields).Warnf("Scrape interrupted: %v", runErr)
	default:
		c.log.WithFields(fields).WithField("error_type", utils.CategorizeError(runErr)).Errorf("Scrape stopped: %v", runErr)
	}

	if runErr != nil {
		return runErr
	}
	return finishErr
}

// processListingPage fetches one listing page and processes every book on it.
// Skippable errors on the listing page itself skip the page.
func (c *Crawler) processListingPage(ctx context.Context, page int) error {
	pageLog := c.log.WithField("page", page)

	var links []string
	err := c.retry.Do(ctx, pageLog, func(ctx context.Context) error {
		listing, err := c.site.FetchListing(ctx, page)
		if err != nil {
			return err
		}
		catalogPage, err := parse.ParseCatalogPage(listing.Body, c.site.ListingURL(page), page)
		if err != nil {
			return err
		}
		links = catalogPage.BookLinks
		return nil
	})
	if err != nil {
		if utils.IsSkippable(err) {
			pageLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Skipping listing page: %v", err)
			return nil
		}
		return utils.WrapErrorf(err, "listing page %d", page)
	}

	pageLog.Infof("Found %d books on listing page", len(links))
	for _, link := range links {
		if _, err := c.processBook(ctx, link, pageLog); err != nil {
			return err
		}
	}
	return nil
}

// processBook runs one book under the connection retry policy and records the outcome.
// It reports whether the book was added to the catalog. Only fatal errors are returned.
func (c *Crawler) processBook(ctx context.Context, bookURL string, log *logrus.Entry) (bool, error) {
	bookLog := log.WithField("book_url", bookURL)

	attempts := 0
	var saved *SavedBook
	err := c.retry.Do(ctx, bookLog, func(ctx context.Context) error {
		attempts++
		s, err := c.books.Process(ctx, bookURL)
		saved = s
		return err
	})

	if isInterrupted(err) {
		return false, err
	}

	status := statusFor(err)
	entry := &models.OutcomeEntry{
		Status:      status,
		BookURL:     bookURL,
		RunID:       c.runID,
		LastAttempt: time.Now(),
		Attempts:    attempts,
	}
	if id, idErr := site.BookIDFromURL(bookURL); idErr == nil {
		entry.BookID = id
	}
	if err != nil {
		entry.ErrorType = utils.CategorizeError(err)
	}
	if saved != nil {
		entry.TextSHA256 = saved.TextSHA256
	}
	if recErr := c.store.RecordOutcome(bookURL, entry); recErr != nil {
		bookLog.Warnf("Failed to record outcome: %v", recErr)
	}
	c.output.CountStatus(status)
	c.metrics.IncBook(status.String())

	switch {
	case err == nil:
		c.output.AddBook(*saved.Book)
		return true, nil
	case utils.IsSkippable(err):
		bookLog.WithFields(logrus.Fields{"status": status, "error_type": entry.ErrorType}).Warnf("Skipping book: %v", err)
		return false, nil
	default:
		return false, utils.WrapErrorf(err, "book %s", bookURL)
	}
}

// statusFor maps a book processing error to its recorded status
func statusFor(err error) models.BookStatus {
	switch {
	case err == nil:
		return models.BookStatusSuccess
	case errors.Is(err, utils.ErrRetryFailed) && errors.Is(err, utils.ErrConnection):
		return models.BookStatusRetryExceeded
	case errors.Is(err, utils.ErrRobotsDisallowed):
		return models.BookStatusRobots
	case errors.Is(err, utils.ErrNoText):
		return models.BookStatusNoText
	case errors.Is(err, utils.ErrNotFound):
		return models.BookStatusNotFound
	case errors.Is(err, utils.ErrMalformedPage), errors.Is(err, utils.ErrParsing):
		return models.BookStatusMalformed
	case utils.IsHTTPStatusError(err), errors.Is(err, utils.ErrRetryFailed):
		return models.BookStatusHTTPError
	default:
		return models.BookStatusFailure
	}
}

func (c *Crawler) startProgress(total int, what string) {
	if c.progressOut == nil || total <= 0 {
		return
	}
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.progressOut),
		progressbar.OptionSetDescription(what),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (c *Crawler) advanceProgress() {
	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}
