// Package activity merges the per-feature log collections into one ordered
// activity log, and filters and pages it for display and export.
package activity

import (
	"context"
	"time"

	"github.com/tsiken/backend/internal/metrics"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source reads one log collection. actorID restricts the read to one user
// when non-empty.
type Source interface {
	Read(ctx context.Context, collection string, actorID string) ([]models.RawRecord, error)
}

type Query struct {
	Collections []string // defaults to models.LogCollections
	ActorID     string
}

type SourceFailure struct {
	Collection string `json:"collection"`
	Error      string `json:"error"`
}

// Result is a possibly partial aggregation. Failures lists the collections
// that contributed nothing because their read failed.
type Result struct {
	Entries  []models.LogEntry `json:"entries"`
	Failures []SourceFailure   `json:"failures,omitempty"`
	// Actors is the number of distinct actors resolved.
	Actors int `json:"actors"`
}

func (r *Result) Partial() bool {
	return len(r.Failures) > 0
}

type Aggregator struct {
	source   Source
	profiles ProfileLookup
	log      *zap.Logger
}

func NewAggregator(source Source, profiles ProfileLookup, log *zap.Logger) *Aggregator {
	return &Aggregator{source: source, profiles: profiles, log: log}
}

// Aggregate reads every collection concurrently, normalizes the records and
// returns them newest first. A failing collection is logged and skipped; only
// cancellation of ctx fails the whole call.
func (a *Aggregator) Aggregate(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	}()

	collections := q.Collections
	if len(collections) == 0 {
		collections = models.LogCollections
	}

	raw := make([][]models.RawRecord, len(collections))
	errs := make([]error, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range collections {
		g.Go(func() error {
			recs, err := a.source.Read(gctx, coll, q.ActorID)
			if err != nil {
				errs[i] = err
				return nil
			}
			raw[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	resolver := NewResolver(a.profiles, a.log)
	normalizer := NewNormalizer(resolver, a.log)

	lists := make([][]models.LogEntry, 0, len(collections))
	for i, coll := range collections {
		if errs[i] != nil {
			metrics.SourceReadFailures.WithLabelValues(coll).Inc()
			a.log.Warn("failed to read log collection", zap.String("collection", coll), zap.Error(errs[i]))
			res.Failures = append(res.Failures, SourceFailure{Collection: coll, Error: errs[i].Error()})
			continue
		}
		entries := make([]models.LogEntry, 0, len(raw[i]))
		for _, rec := range raw[i] {
			if rec.Collection == "" {
				rec.Collection = coll
			}
			entries = append(entries, normalizer.Normalize(ctx, rec))
		}
		a.log.Debug("read log collection", zap.String("collection", coll), zap.Int("count", len(entries)))
		lists = append(lists, entries)
	}

	res.Entries = Merge(lists...)
	res.Actors = resolver.Lookups()
	a.log.Debug("aggregated activity logs",
		zap.Int("entries", len(res.Entries)),
		zap.Int("actors", res.Actors),
		zap.Int("failed_sources", len(res.Failures)),
	)
	return res, nil
}
