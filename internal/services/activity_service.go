package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tsiken/backend/internal/activity"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/report"
	"go.uber.org/zap"
)

// LogQuery selects one page of the activity log.
type LogQuery struct {
	Name     string
	Start    string // yyyy-mm-dd, optional
	End      string // yyyy-mm-dd, optional
	Page     int
	PageSize int
}

type LogPage struct {
	activity.Page
	Failures []activity.SourceFailure `json:"failures,omitempty"`
	Partial  bool                     `json:"partial"`
}

type ExportRequest struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
	Title string `json:"title"`
}

type ActivityService struct {
	aggregator *activity.Aggregator
	exporter   *report.Exporter
	logs       LogWriter
	loc        *time.Location
	pageSize   int
	recent     int
	log        *zap.Logger
}

func NewActivityService(
	aggregator *activity.Aggregator,
	exporter *report.Exporter,
	logs LogWriter,
	loc *time.Location,
	pageSize, recent int,
	log *zap.Logger,
) *ActivityService {
	if loc == nil {
		loc = time.UTC
	}
	if pageSize <= 0 {
		pageSize = activity.DefaultPageSize
	}
	if recent <= 0 {
		recent = 5
	}
	return &ActivityService{
		aggregator: aggregator,
		exporter:   exporter,
		logs:       logs,
		loc:        loc,
		pageSize:   pageSize,
		recent:     recent,
		log:        log,
	}
}

func (s *ActivityService) filter(name, start, end string) (activity.Filter, error) {
	f := activity.Filter{Name: name, Location: s.loc}
	var err error
	if f.Start, err = activity.ParseDay(start, s.loc); err != nil {
		return f, err
	}
	if f.End, err = activity.ParseDay(end, s.loc); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func (s *ActivityService) load(ctx context.Context, actorID string, f activity.Filter) (*activity.Result, []models.LogEntry, error) {
	res, err := s.aggregator.Aggregate(ctx, activity.Query{ActorID: actorID})
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindUnavailable, "activity log unavailable", err)
	}
	return res, f.Apply(res.Entries), nil
}

// AllLogs is the admin view over every actor's activity.
func (s *ActivityService) AllLogs(ctx context.Context, q LogQuery) (*LogPage, error) {
	return s.logsFor(ctx, "", q)
}

// UserLogs returns only the activity of actor.
func (s *ActivityService) UserLogs(ctx context.Context, actor *models.Identity, q LogQuery) (*LogPage, error) {
	if actor == nil || actor.UserID == "" {
		return nil, apperr.Unauthorized("not signed in")
	}
	return s.logsFor(ctx, actor.UserID, q)
}

func (s *ActivityService) logsFor(ctx context.Context, actorID string, q LogQuery) (*LogPage, error) {
	f, err := s.filter(q.Name, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	size := q.PageSize
	if size <= 0 || size > 100 {
		size = s.pageSize
	}

	res, entries, err := s.load(ctx, actorID, f)
	if err != nil {
		return nil, err
	}
	return &LogPage{
		Page:     activity.Paginate(entries, q.Page, size),
		Failures: res.Failures,
		Partial:  res.Partial(),
	}, nil
}

// Recent returns the newest entries of actor, or of everyone when actor is
// an admin and all is set.
func (s *ActivityService) Recent(ctx context.Context, actor *models.Identity, all bool) ([]models.LogEntry, error) {
	actorID := actor.UserID
	if all && actor.Role == models.RoleAdmin {
		actorID = ""
	}
	res, err := s.aggregator.Aggregate(ctx, activity.Query{ActorID: actorID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "activity log unavailable", err)
	}
	return activity.Recent(res.Entries, s.recent), nil
}

// Export renders the filtered log to a shared PDF and records the export in
// report_logs. Failing to record it does not fail the export.
func (s *ActivityService) Export(ctx context.Context, actor *models.Identity, req ExportRequest) (*report.Export, error) {
	f, err := s.filter(req.Name, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	_, entries, err := s.load(ctx, "", f)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = "Activity Log Report"
	}
	out, err := s.exporter.Export(ctx, entries, report.Meta{
		Title:       title,
		Filter:      f,
		GeneratedAt: time.Now(),
		GeneratedBy: actor.Email,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not generate report", err)
	}

	if err := s.logs.Append(ctx, models.NewLogRecord{
		Collection:  models.CollectionReport,
		UserID:      actor.UserID,
		UserName:    actor.Email,
		Action:      "Export Report",
		Description: fmt.Sprintf("Exported %s (PDF)", title),
		Meta: map[string]any{
			"fileName":   out.FileName,
			"totalLogs":  out.Entries,
			"nameFilter": f.Name,
		},
	}); err != nil {
		s.log.Warn("failed to record report export", zap.String("file", out.FileName), zap.Error(err))
	}
	return out, nil
}
