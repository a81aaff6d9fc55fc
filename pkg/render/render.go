// Package render turns the scraped catalog into paginated static HTML.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/metrics"
	"tululu-scraper/pkg/models"
	"tululu-scraper/pkg/utils"
)

//go:embed templates/index.html
var templateFS embed.FS

const embeddedTemplate = "templates/index.html"

// PageFilename is the file name of display page n (1-based)
func PageFilename(n int) string {
	return fmt.Sprintf("index%d.html", n)
}

// Paginate chunks books into display pages of rows*columns books, each split into rows of columns.
// Non-positive rows or columns are treated as 1. An empty catalog yields no pages.
func Paginate(books []models.Book, rows, columns int) []models.DisplayPage {
	if rows < 1 {
		rows = 1
	}
	if columns < 1 {
		columns = 1
	}
	perPage := rows * columns
	total := (len(books) + perPage - 1) / perPage

	pages := make([]models.DisplayPage, 0, total)
	for start := 0; start < len(books); start += perPage {
		end := min(start+perPage, len(books))
		page := models.DisplayPage{Number: len(pages) + 1, Total: total}
		for rowStart := start; rowStart < end; rowStart += columns {
			rowEnd := min(rowStart+columns, end)
			page.Rows = append(page.Rows, books[rowStart:rowEnd])
		}
		pages = append(pages, page)
	}
	return pages
}

type pageLink struct {
	Number  int
	Href    string
	Current bool
}

type pageData struct {
	Page  models.DisplayPage
	Links []pageLink
	Prev  string
	Next  string
}

// Renderer writes display pages from an html/template
type Renderer struct {
	cfg       config.RenderConfig
	outputDir string // Absolute
	tmpl      *template.Template
	metrics   *metrics.Recorder
	log       *logrus.Entry
}

// New parses the configured template, or the embedded one when TemplatePath is empty
func New(cfg config.RenderConfig, rec *metrics.Recorder, log *logrus.Entry) (*Renderer, error) {
	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: output dir '%s': %w", utils.ErrFilesystem, cfg.OutputDir, err)
	}

	r := &Renderer{cfg: cfg, outputDir: outputDir, metrics: rec, log: log}
	funcs := template.FuncMap{"rel": r.relPath}

	var tmpl *template.Template
	if cfg.TemplatePath != "" {
		tmpl, err = template.New(filepath.Base(cfg.TemplatePath)).Funcs(funcs).ParseFiles(cfg.TemplatePath)
	} else {
		tmpl, err = template.New(filepath.Base(embeddedTemplate)).Funcs(funcs).ParseFS(templateFS, embeddedTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: template: %w", utils.ErrParsing, err)
	}
	r.tmpl = tmpl
	return r, nil
}

// relPath rewrites a saved file path so it resolves from the output directory
func (r *Renderer) relPath(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(r.outputDir, abs)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// Render writes one HTML file per display page and returns their paths in page order.
// An empty catalog still produces a single empty page.
func (r *Renderer) Render(ctx context.Context, books []models.Book) ([]string, error) {
	pages := Paginate(books, r.cfg.Rows, r.cfg.Columns)
	if len(pages) == 0 {
		pages = []models.DisplayPage{{Number: 1, Total: 1}}
	}

	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output dir '%s': %w", utils.ErrFilesystem, r.outputDir, err)
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	paths := make([]string, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := r.renderPage(page, len(pages))
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.metrics.AddPagesRendered(len(paths))
	r.log.WithFields(logrus.Fields{"pages": len(paths), "books": len(books), "output_dir": r.outputDir}).Info("Catalog rendered")
	return paths, nil
}

func (r *Renderer) renderPage(page models.DisplayPage, total int) (string, error) {
	data := pageData{Page: page}
	for n := 1; n <= total; n++ {
		data.Links = append(data.Links, pageLink{Number: n, Href: PageFilename(n), Current: n == page.Number})
	}
	if page.Number > 1 {
		data.Prev = PageFilename(page.Number - 1)
	}
	if page.Number < total {
		data.Next = PageFilename(page.Number + 1)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: executing template for page %d: %w", utils.ErrParsing, page.Number, err)
	}

	path := filepath.Join(r.outputDir, PageFilename(page.Number))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, path, err)
	}
	r.log.Debugf("Rendered page %d/%d to %s", page.Number, total, path)
	return path, nil
}
