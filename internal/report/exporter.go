package report

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tsiken/backend/internal/metrics"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

// Printer converts an HTML document into a PDF.
type Printer interface {
	Print(ctx context.Context, html []byte) ([]byte, error)
}

// Sharer stores a finished document and returns a link to it.
type Sharer interface {
	Share(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// Export describes a finished PDF export.
type Export struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
	Size     int    `json:"size"`
	Entries  int    `json:"entries"`
}

type Exporter struct {
	renderer *Renderer
	printer  Printer
	sharer   Sharer
	log      *zap.Logger
}

func NewExporter(renderer *Renderer, printer Printer, sharer Sharer, log *zap.Logger) *Exporter {
	return &Exporter{renderer: renderer, printer: printer, sharer: sharer, log: log}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// FileName builds "<Prefix>_<Title>_<yyyymmdd_hhmmss>.pdf".
func FileName(prefix, title string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.pdf", prefix, unsafeName.ReplaceAllString(title, "_"), at.Format("20060102_150405"))
}

func (e *Exporter) Export(ctx context.Context, entries []models.LogEntry, meta Meta) (*Export, error) {
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	html, err := e.renderer.RenderHTML(entries, meta)
	if err != nil {
		metrics.ReportsExported.WithLabelValues("render_failed").Inc()
		return nil, err
	}

	pdf, err := e.printer.Print(ctx, html)
	if err != nil {
		metrics.ReportsExported.WithLabelValues("print_failed").Inc()
		return nil, fmt.Errorf("generate pdf: %w", err)
	}

	title := meta.Title
	if title == "" {
		title = "Activity Log Report"
	}
	name := FileName("Activity_Logs", title, meta.GeneratedAt.In(e.renderer.loc))

	url, err := e.sharer.Share(ctx, name, "application/pdf", pdf)
	if err != nil {
		metrics.ReportsExported.WithLabelValues("share_failed").Inc()
		return nil, fmt.Errorf("share pdf: %w", err)
	}

	metrics.ReportsExported.WithLabelValues("ok").Inc()
	e.log.Info("activity log report exported",
		zap.String("file", name),
		zap.Int("entries", len(entries)),
		zap.Int("bytes", len(pdf)),
	)
	return &Export{FileName: name, URL: url, Size: len(pdf), Entries: len(entries)}, nil
}
