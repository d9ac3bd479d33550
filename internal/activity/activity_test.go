package activity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

type fakeSource struct {
	records map[string][]models.RawRecord
	fail    map[string]error
	calls   atomic.Int32
}

func (s *fakeSource) Read(ctx context.Context, collection, actorID string) ([]models.RawRecord, error) {
	s.calls.Add(1)
	if err := s.fail[collection]; err != nil {
		return nil, err
	}
	var out []models.RawRecord
	for _, r := range s.records[collection] {
		if actorID != "" && r.Data["userId"] != actorID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type fakeProfiles struct {
	profiles map[string]*models.UserProfile
	calls    map[string]int
	err      error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[id], nil
}

func rec(coll, id, user string, ts any) models.RawRecord {
	return models.RawRecord{
		ID:         id,
		Collection: coll,
		Data:       map[string]any{"userId": user, "timestamp": ts},
	}
}

func day(d int) time.Time {
	return time.Date(2025, 10, d, 9, 0, 0, 0, time.UTC)
}

func TestAggregateMergesSourcesNewestFirst(t *testing.T) {
	src := &fakeSource{records: map[string][]models.RawRecord{
		"A": {rec("A", "a1", "u1", day(1)), rec("A", "a2", "u1", day(2).Format(time.RFC3339)), rec("A", "a3", "u2", day(3))},
		"B": {rec("B", "b1", "u2", day(2)), rec("B", "b2", "u1", day(4).UnixMilli())},
	}}
	profiles := &fakeProfiles{profiles: map[string]*models.UserProfile{
		"u1": {ID: "u1", FirstName: "Juan", LastName: "Dela Cruz", Role: "admin"},
		"u2": {ID: "u2", FirstName: "Maria", LastName: "Santos", Role: "user"},
	}}

	agg := NewAggregator(src, profiles, zap.NewNop())
	res, err := agg.Aggregate(context.Background(), Query{Collections: []string{"A", "B"}})
	require.NoError(t, err)
	require.False(t, res.Partial())
	require.Len(t, res.Entries, 5)

	var ids []string
	for _, e := range res.Entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b2", "a3", "a2", "b1", "a1"}, ids)

	for i := 1; i < len(res.Entries); i++ {
		assert.False(t, res.Entries[i].OccurredAt.After(res.Entries[i-1].OccurredAt))
	}

	assert.Equal(t, "Juan Dela Cruz", res.Entries[0].ActorDisplayName)
	assert.Equal(t, "admin", res.Entries[0].ActorRole)
	assert.Equal(t, 1, profiles.calls["u1"], "actor lookups are cached per aggregation")
	assert.Equal(t, 1, profiles.calls["u2"])
	assert.Equal(t, 2, res.Actors)

	page1 := Paginate(res.Entries, 1, 2)
	assert.Equal(t, 3, page1.TotalPages)
	assert.Equal(t, []string{"b2", "a3"}, []string{page1.Items[0].ID, page1.Items[1].ID})
	page3 := Paginate(res.Entries, 3, 2)
	require.Len(t, page3.Items, 1)
	assert.Equal(t, "a1", page3.Items[0].ID)
}

func TestAggregateToleratesFailingSource(t *testing.T) {
	src := &fakeSource{
		records: map[string][]models.RawRecord{
			"ok": {rec("ok", "1", "", day(1))},
		},
		fail: map[string]error{"broken": errors.New("unavailable")},
	}

	agg := NewAggregator(src, nil, zap.NewNop())
	res, err := agg.Aggregate(context.Background(), Query{Collections: []string{"ok", "broken"}})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "broken", res.Failures[0].Collection)
	assert.True(t, res.Partial())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(&fakeSource{}, nil, zap.NewNop())
	_, err := agg.Aggregate(ctx, Query{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateScopedToActor(t *testing.T) {
	src := &fakeSource{records: map[string][]models.RawRecord{
		models.CollectionSession: {rec(models.CollectionSession, "1", "u1", day(1)), rec(models.CollectionSession, "2", "u2", day(2))},
	}}
	agg := NewAggregator(src, nil, zap.NewNop())
	res, err := agg.Aggregate(context.Background(), Query{ActorID: "u1"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "u1", res.Entries[0].ActorID)
	assert.Equal(t, int32(len(models.LogCollections)), src.calls.Load())
}

func TestNormalizeDefaults(t *testing.T) {
	n := NewNormalizer(NewResolver(&fakeProfiles{err: errors.New("lookup down")}, zap.NewNop()), zap.NewNop())

	e := n.Normalize(context.Background(), models.RawRecord{
		ID:         "x",
		Collection: models.CollectionWateringActivity,
		Data:       map[string]any{"userId": "ghost", "timestamp": "bogus"},
	})
	assert.Equal(t, models.UnknownActorName, e.ActorDisplayName)
	assert.Equal(t, models.UnknownActorRole, e.ActorRole)
	assert.Equal(t, "Watering activity", e.Action)
	assert.Equal(t, "Watering was triggered", e.Description)
	assert.True(t, Epoch.Equal(e.OccurredAt))

	e = n.Normalize(context.Background(), models.RawRecord{
		ID:         "y",
		Collection: models.CollectionReport,
		Data: map[string]any{
			"userId":     "ghost",
			"firstName":  "Ana",
			"lastName":   "Reyes",
			"reportName": "Daily Sensor Report",
			"type":       "pdf",
			"timestamp":  day(5),
		},
	})
	assert.Equal(t, "Ana Reyes", e.ActorDisplayName)
	assert.Equal(t, "Exported Daily Sensor Report (PDF)", e.Description)
}

func TestSortTieBreakIsDeterministic(t *testing.T) {
	at := day(2)
	entries := []models.LogEntry{
		{ID: "2", SourceCollection: "b", OccurredAt: at},
		{ID: "1", SourceCollection: "b", OccurredAt: at},
		{ID: "9", SourceCollection: "a", OccurredAt: at},
	}
	SortDescending(entries)
	assert.Equal(t, "a/9 b/1 b/2", fmt.Sprintf("%s/%s %s/%s %s/%s",
		entries[0].SourceCollection, entries[0].ID,
		entries[1].SourceCollection, entries[1].ID,
		entries[2].SourceCollection, entries[2].ID))
}
