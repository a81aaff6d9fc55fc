package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/metrics"
	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/storage"
	"tululu-scraper/pkg/utils"
)

const treeFilename = "tree.txt"

// OutputManager owns the catalog collected during a run and every file written from it:
// the metadata JSON, the YAML run summary, the metrics textfile and the directory tree.
type OutputManager struct {
	log     *logrus.Entry
	cfg     *config.AppConfig
	metrics *metrics.Recorder
	runID   string

	mu         sync.Mutex
	books      []models.Book
	counts     map[models.BookStatus]int
	mode       string
	rangeStart int
	rangeEnd   int
	startTime  time.Time
}

// NewOutputManager creates an OutputManager. Nothing is written until FlushCatalog or Finish.
func NewOutputManager(cfg *config.AppConfig, runID string, rec *metrics.Recorder, log *logrus.Entry) *OutputManager {
	return &OutputManager{
		log:     log,
		cfg:     cfg,
		metrics: rec,
		runID:   runID,
		books:   make([]models.Book, 0),
		counts:  make(map[models.BookStatus]int),
	}
}

// Begin records the run mode and range for the run summary
func (om *OutputManager) Begin(mode string, start, end int) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.mode = mode
	om.rangeStart = start
	om.rangeEnd = end
	om.startTime = time.Now()
}

// AddBook appends a book to the catalog in processing order
func (om *OutputManager) AddBook(book models.Book) {
	om.mu.Lock()
	om.books = append(om.books, book)
	om.mu.Unlock()
}

// CountStatus tallies one book outcome for the run summary
func (om *OutputManager) CountStatus(status models.BookStatus) {
	om.mu.Lock()
	om.counts[status]++
	om.mu.Unlock()
}

// Books returns a copy of the catalog collected so far
func (om *OutputManager) Books() []models.Book {
	om.mu.Lock()
	defer om.mu.Unlock()
	out := make([]models.Book, len(om.books))
	copy(out, om.books)
	return out
}

// FlushCatalog replaces the metadata file with the full catalog collected so far
func (om *OutputManager) FlushCatalog() error {
	books := om.Books()
	path := om.cfg.CatalogFilePath()
	if err := storage.WriteCatalog(path, books); err != nil {
		return err
	}
	om.metrics.CatalogFlushed(len(books))
	om.log.WithFields(logrus.Fields{"path": path, "books": len(books)}).Debug("Catalog written")
	return nil
}

// Finish writes the final catalog and the optional run artifacts.
// runErr is the error that ended the run, if any; it is recorded in the run summary.
// Only a failure to write the catalog is returned; the optional artifacts just log.
func (om *OutputManager) Finish(runErr error) error {
	catalogErr := om.FlushCatalog()
	if catalogErr != nil {
		om.log.Errorf("Failed to write catalog: %v", catalogErr)
	} else {
		om.log.Infof("Catalog with %d books written to %s", len(om.Books()), om.cfg.CatalogFilePath())
	}

	if err := om.writeRunMetadata(runErr); err != nil {
		om.log.Warnf("Failed to write run metadata: %v", err)
	}

	if om.cfg.MetricsTextfile != "" {
		if err := om.metrics.WriteTextfile(om.cfg.MetricsTextfile); err != nil {
			om.log.Warnf("Failed to write metrics textfile: %v", err)
		}
	}

	if om.cfg.WriteTree {
		treePath := filepath.Join(om.cfg.DestFolder, treeFilename)
		if err := utils.GenerateAndSaveTreeStructure(om.cfg.DestFolder, treePath, om.cfg.TreeFileLimit, om.log); err != nil {
			om.log.Warnf("Failed to write directory tree: %v", err)
		}
	}

	return catalogErr
}

// writeRunMetadata writes the YAML run summary when enabled
func (om *OutputManager) writeRunMetadata(runErr error) error {
	path := om.cfg.RunMetadataFilePath()
	if path == "" {
		return nil
	}

	var configMap map[string]interface{}
	cfgBytes, err := yaml.Marshal(om.cfg)
	if err != nil {
		om.log.Warnf("Could not marshal configuration for run metadata: %v", err)
	} else if err := yaml.Unmarshal(cfgBytes, &configMap); err != nil {
		om.log.Warnf("Could not unmarshal configuration into map for run metadata: %v", err)
		configMap = nil
	}

	om.mu.Lock()
	counts := make(map[string]int, len(om.counts))
	for status, n := range om.counts {
		counts[status.String()] = n
	}
	meta := models.RunMetadata{
		RunID:         om.runID,
		Mode:          om.mode,
		RangeStart:    om.rangeStart,
		RangeEnd:      om.rangeEnd,
		StartTime:     om.startTime,
		EndTime:       time.Now(),
		BooksSaved:    len(om.books),
		StatusCounts:  counts,
		CatalogFile:   om.cfg.CatalogFilePath(),
		Configuration: configMap,
	}
	om.mu.Unlock()

	if runErr != nil {
		meta.FatalError = runErr.Error()
		meta.Interrupted = isInterrupted(runErr)
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("%w: marshal run metadata: %w", utils.ErrParsing, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing run metadata '%s': %w", utils.ErrFilesystem, path, err)
	}
	om.log.Infof("Run metadata written to %s", path)
	return nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
