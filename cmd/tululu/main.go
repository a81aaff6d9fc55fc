package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/crawler"
	"tululu-scraper/pkg/fetch"
	tlog "tululu-scraper/pkg/log"
	"tululu-scraper/pkg/metrics"
	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/render"
	"tululu-scraper/pkg/site"
	"tululu-scraper/pkg/storage"
	"tululu-scraper/pkg/utils"
)

const (
	version           = "1.0.0"
	defaultConfigFile = "config.yaml"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		os.Exit(runScrape(os.Args[2:], crawler.ModePages))
	case "books":
		os.Exit(runScrape(os.Args[2:], crawler.ModeIDs))
	case "render":
		os.Exit(runRender(os.Args[2:]))
	case "serve":
		os.Exit(runServe(os.Args[2:]))
	case "report":
		os.Exit(runReport(os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "version":
		fmt.Printf("tululu %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `tululu - tululu.org book scraper and catalog renderer

Usage:
  tululu <command> [options]

Commands:
  crawl     Download every book on a range of category listing pages
  books     Download books by id range
  render    Render the paginated static catalog from the metadata file
  serve     Serve the rendered catalog over HTTP
  report    Print the per-book outcomes of the last run
  validate  Validate the configuration file
  version   Show version info

Run 'tululu <command> -h' for command-specific help.`)
}

// commonFlags are shared by every command that reads the configuration
type commonFlags struct {
	configFile *string
	logLevel   *string
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configFile: fs.String("config", defaultConfigFile, "Path to YAML config file (optional unless set explicitly)"),
		logLevel:   fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)"),
	}
}

// scrapeFlags mirror the original command line; they override config file values when set
type scrapeFlags struct {
	startPage  *int
	endPage    *int
	startID    *int
	endID      *int
	category   *int
	skipImgs   *bool
	skipTxt    *bool
	destFolder *string
	jsonPath   *string
	progress   *bool
	report     *string
}

func registerScrape(fs *flag.FlagSet, mode string) scrapeFlags {
	f := scrapeFlags{
		skipImgs:   fs.Bool("skip_imgs", false, "Do not download cover images"),
		skipTxt:    fs.Bool("skip_txt", false, "Do not download book texts"),
		destFolder: fs.String("dest_folder", "", "Directory for books/, images/ and comments/"),
		jsonPath:   fs.String("json_path", "", "Metadata file, or directory that gets books_info.json"),
		progress:   fs.Bool("progress", true, "Show a progress bar on stderr"),
		report:     fs.String("write-report", "", "Write the per-book outcome report to this file when done"),
	}
	if mode == crawler.ModePages {
		f.startPage = fs.Int("start_page", 0, "First listing page (inclusive)")
		f.endPage = fs.Int("end_page", 0, "Last listing page (inclusive)")
		f.category = fs.Int("category", 0, "Listing category id")
	} else {
		f.startID = fs.Int("start_id", 0, "First book id (inclusive)")
		f.endID = fs.Int("end_id", 0, "Last book id (inclusive)")
	}
	return f
}

// applyScrapeOverrides copies explicitly set flags onto cfg
func applyScrapeOverrides(fs *flag.FlagSet, f scrapeFlags, cfg *config.AppConfig) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "start_page":
			cfg.StartPage = *f.startPage
		case "end_page":
			cfg.EndPage = *f.endPage
		case "category":
			cfg.Category = *f.category
		case "start_id":
			cfg.StartID = *f.startID
		case "end_id":
			cfg.EndID = *f.endID
		case "skip_imgs":
			cfg.SkipImages = *f.skipImgs
		case "skip_txt":
			cfg.SkipText = *f.skipTxt
		case "dest_folder":
			cfg.DestFolder = *f.destFolder
		case "json_path":
			cfg.JSONPath = *f.jsonPath
		}
	})
}

// flagWasSet reports whether name was given on the command line
func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

func setupLogger(level string) *logrus.Logger {
	log, err := tlog.NewLogger(level, os.Stderr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", level, err)
	}
	return log
}

// loadConfig reads the config file. The default path may be missing; an explicit one may not.
func loadConfig(fs *flag.FlagSet, path string) (*config.AppConfig, error) {
	return config.Load(path, !flagWasSet(fs, "config"))
}

// validateConfig applies defaults, logs warnings and returns any hard error
func validateConfig(cfg *config.AppConfig, log *logrus.Logger) error {
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	return err
}

func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Debugf("Could not marshal effective config: %v", err)
		return
	}
	log.Debugf("Effective configuration:\n%s", data)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the global timeout expires.
// A second signal forces exit.
func signalContext(timeout time.Duration, log *logrus.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		log.Infof("Setting global timeout: %v", timeout)
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Finishing the current book and writing the catalog...", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// runScrape handles the crawl (listing pages) and books (id range) commands
func runScrape(args []string, mode string) int {
	cmdName := "crawl"
	if mode == crawler.ModeIDs {
		cmdName = "books"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	common := registerCommon(fs)
	sf := registerScrape(fs, mode)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tululu %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		if mode == crawler.ModePages {
			fmt.Fprintf(os.Stderr, "  tululu crawl -start_page 1 -end_page 4 -dest_folder ./library\n")
		} else {
			fmt.Fprintf(os.Stderr, "  tululu books -start_id 20 -end_id 30 -skip_imgs\n")
		}
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := setupLogger(*common.logLevel)

	cfg, err := loadConfig(fs, *common.configFile)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	applyScrapeOverrides(fs, sf, cfg)
	if err := validateConfig(cfg, log); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return 1
	}
	if mode == crawler.ModePages {
		err = cfg.ValidatePageRange()
	} else {
		err = cfg.ValidateIDRange()
	}
	if err != nil {
		log.Errorf("Invalid range: %v", err)
		return 1
	}
	logAppConfig(cfg, log)

	ctx, cancel := signalContext(cfg.GlobalTimeout, log)
	defer cancel()

	var progress io.Writer
	if *sf.progress {
		progress = os.Stderr
	}

	runErr := scrape(ctx, cfg, mode, progress, *sf.report, log)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			log.Warnf("Scrape interrupted: %v", runErr)
			return 130
		}
		log.Errorf("Scrape failed (%s): %v", utils.CategorizeError(runErr), runErr)
		return 1
	}
	return 0
}

// scrape wires the pipeline for one run and executes it
func scrape(ctx context.Context, cfg *config.AppConfig, mode string, progress io.Writer, reportPath string, log *logrus.Logger) error {
	entry := log.WithField("component", "scrape")

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base_url: %w", utils.ErrConfigValidation, err)
	}

	var store storage.OutcomeStore
	if cfg.DisableStateDB {
		store = storage.NewMemoryStore()
	} else {
		badgerStore, err := storage.NewBadgerStore(cfg.StateDir, baseURL.Hostname(), false, entry)
		if err != nil {
			return err
		}
		defer func() {
			if gcErr := badgerStore.RunGC(); gcErr != nil {
				entry.Warnf("Outcome DB GC failed: %v", gcErr)
			}
			badgerStore.Close()
		}()
		store = badgerStore
	}

	rec := metrics.NewRecorder()
	client := fetch.NewClient(cfg.HTTPClientSettings, entry)
	limiter := fetch.NewRateLimiter(cfg.DelayPerHost, entry)
	fetcher := fetch.NewFetcher(client, cfg, limiter, rec, entry)

	var robots site.RobotsChecker
	if cfg.RespectRobots {
		robots = fetch.NewRobotsHandler(fetcher, cfg.EffectiveUserAgent(), entry)
	}
	st, err := site.New(cfg.BaseURL, cfg.Category, fetcher, robots, entry)
	if err != nil {
		return err
	}

	assets := storage.NewAssetStore(cfg.DestFolder, entry)
	c := crawler.NewCrawlerWithOptions(cfg, st, assets, store, rec, entry, crawler.CrawlerOptions{Progress: progress})

	if mode == crawler.ModePages {
		err = c.RunPages(ctx, cfg.StartPage, cfg.EndPage)
	} else {
		err = c.RunIDs(ctx, cfg.StartID, cfg.EndID)
	}

	if reportPath != "" {
		if reportErr := writeReportFile(store, reportPath); reportErr != nil {
			entry.Errorf("Failed to write outcome report: %v", reportErr)
		} else {
			entry.Infof("Outcome report written to %s", reportPath)
		}
	}
	return err
}

func writeReportFile(store storage.OutcomeStore, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create report '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()
	// Written after the run context may be cancelled, so use a fresh one
	return store.WriteReport(context.Background(), f)
}

// runRender handles the render subcommand
func runRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	common := registerCommon(fs)
	jsonPath := fs.String("json_path", "", "Metadata file, or directory containing books_info.json")
	outputDir := fs.String("output_dir", "", "Directory for index{n}.html pages")
	templatePath := fs.String("template", "", "html/template file to use instead of the built-in one")
	rows := fs.Int("rows", 0, "Rows per page")
	columns := fs.Int("columns", 0, "Books per row")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tululu render [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := setupLogger(*common.logLevel)
	cfg, err := loadConfig(fs, *common.configFile)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "json_path":
			cfg.JSONPath = *jsonPath
		case "output_dir":
			cfg.Render.OutputDir = *outputDir
		case "template":
			cfg.Render.TemplatePath = *templatePath
		case "rows":
			cfg.Render.Rows = *rows
		case "columns":
			cfg.Render.Columns = *columns
		}
	})
	if err := validateConfig(cfg, log); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return 1
	}

	if _, err := renderCatalog(context.Background(), cfg, log); err != nil {
		log.Errorf("Render failed: %v", err)
		return 1
	}
	return 0
}

func renderCatalog(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) ([]string, error) {
	entry := log.WithField("component", "render")
	books, err := storage.ReadCatalog(cfg.CatalogFilePath())
	if err != nil {
		return nil, err
	}
	r, err := render.New(cfg.Render, metrics.NewRecorder(), entry)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, books)
}

// runServe handles the serve subcommand
func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := registerCommon(fs)
	addr := fs.String("addr", "0.0.0.0:8000", "Listen address")
	dir := fs.String("dir", ".", "Directory to serve")
	renderFirst := fs.Bool("render", true, "Render the catalog before serving")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tululu serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := setupLogger(*common.logLevel)
	if *renderFirst {
		cfg, err := loadConfig(fs, *common.configFile)
		if err != nil {
			log.Errorf("Config error: %v", err)
			return 1
		}
		if err := validateConfig(cfg, log); err != nil {
			log.Errorf("Invalid configuration: %v", err)
			return 1
		}
		if _, err := renderCatalog(context.Background(), cfg, log); err != nil {
			log.Errorf("Render failed: %v", err)
			return 1
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := render.Serve(ctx, *addr, *dir, log.WithField("component", "serve")); err != nil {
		log.Errorf("Server error: %v", err)
		return 1
	}
	return 0
}

// runReport handles the report subcommand
func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	common := registerCommon(fs)
	summary := fs.Bool("summary", false, "Print counts per status instead of one line per book")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tululu report [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := setupLogger(*common.logLevel)
	cfg, err := loadConfig(fs, *common.configFile)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	if err := validateConfig(cfg, log); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return 1
	}
	if err := doReport(cfg, *summary, os.Stdout, log.WithField("component", "report")); err != nil {
		log.Errorf("Report failed: %v", err)
		return 1
	}
	return 0
}

// doReport opens the outcome database left by the last run and prints it
func doReport(cfg *config.AppConfig, summary bool, w io.Writer, log *logrus.Entry) error {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base_url: %w", utils.ErrConfigValidation, err)
	}
	store, err := storage.NewBadgerStore(cfg.StateDir, baseURL.Hostname(), true, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if !summary {
		return store.WriteReport(ctx, w)
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	statuses := make([]models.BookStatus, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, status := range statuses {
		fmt.Fprintf(w, "%-16s %d\n", status, counts[status])
	}
	return nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigFile, "Path to config file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tululu validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return doValidate(*configFile, os.Stdout, os.Stderr)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configPath, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, check := range []func() error{cfg.ValidatePageRange, cfg.ValidateIDRange} {
		if err := check(); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(stdout, "OK: pages %d..%d of category %d, ids %d..%d, catalog %s\n",
		cfg.StartPage, cfg.EndPage, cfg.Category, cfg.StartID, cfg.EndID, cfg.CatalogFilePath())
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
