// Package report renders activity logs into a paged HTML document and turns
// it into a shared PDF.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tsiken/backend/internal/activity"
	"github.com/tsiken/backend/internal/models"
)

const DefaultExportPageSize = 50

// Meta is the header printed on every page.
type Meta struct {
	Title       string
	Filter      activity.Filter
	GeneratedAt time.Time
	GeneratedBy string
}

type row struct {
	Index       int
	Date        string
	Time        string
	Name        string
	Role        string
	Action      string
	Description string
}

type page struct {
	Number int
	Rows   []row
}

type document struct {
	Title       string
	NameFilter  string
	StartFilter string
	EndFilter   string
	Total       int
	GeneratedAt string
	GeneratedBy string
	PageCount   int
	Pages       []page
}

// Renderer formats entries in a fixed location, e.g. the farm's timezone.
type Renderer struct {
	loc      *time.Location
	pageSize int
}

func NewRenderer(loc *time.Location, pageSize int) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	if pageSize <= 0 {
		pageSize = DefaultExportPageSize
	}
	return &Renderer{loc: loc, pageSize: pageSize}
}

// RenderHTML builds the document. More than pageSize entries are split into
// pages separated by page-break markers. No entries still yields one page.
func (r *Renderer) RenderHTML(entries []models.LogEntry, meta Meta) ([]byte, error) {
	doc := document{
		Title:       meta.Title,
		NameFilter:  orDefault(meta.Filter.Name, "All"),
		StartFilter: r.day(meta.Filter.Start),
		EndFilter:   r.day(meta.Filter.End),
		Total:       len(entries),
		GeneratedAt: meta.GeneratedAt.In(r.loc).Format("02-Jan-2006 03:04 PM"),
		GeneratedBy: meta.GeneratedBy,
	}
	if doc.Title == "" {
		doc.Title = "Activity Log Report"
	}

	for start := 0; ; start += r.pageSize {
		end := start + r.pageSize
		if end > len(entries) {
			end = len(entries)
		}
		p := page{Number: len(doc.Pages) + 1}
		for i, e := range entries[start:end] {
			p.Rows = append(p.Rows, r.row(start+i+1, e))
		}
		doc.Pages = append(doc.Pages, p)
		if end >= len(entries) {
			break
		}
	}
	doc.PageCount = len(doc.Pages)

	var buf bytes.Buffer
	if err := logReportTmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render log report: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) row(idx int, e models.LogEntry) row {
	out := row{
		Index:       idx,
		Name:        orDefault(e.ActorDisplayName, models.UnknownActorName),
		Role:        orDefault(e.ActorRole, models.UnknownActorRole),
		Action:      orDefault(e.Action, "N/A"),
		Description: orDefault(e.Description, "N/A"),
		Date:        "N/A",
		Time:        "N/A",
	}
	if !e.OccurredAt.Equal(activity.Epoch) && !e.OccurredAt.IsZero() {
		t := e.OccurredAt.In(r.loc)
		out.Date = t.Format("02-Jan-2006")
		out.Time = t.Format("3:04 PM")
	}
	return out
}

func (r *Renderer) day(t *time.Time) string {
	if t == nil {
		return "None"
	}
	return t.In(r.loc).Format(activity.DateLayout)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
