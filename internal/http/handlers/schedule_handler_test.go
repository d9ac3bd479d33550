package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

// memSchedules keeps one user's schedules.
type memSchedules struct {
	feeds    []models.FeedSchedule
	watering *models.WateringSchedule
	night    *models.NightTime
}

func (m *memSchedules) ListFeeds(ctx context.Context, userID uuid.UUID) ([]models.FeedSchedule, error) {
	return append([]models.FeedSchedule{}, m.feeds...), nil
}

func (m *memSchedules) GetFeed(ctx context.Context, userID uuid.UUID, feedNo int) (*models.FeedSchedule, error) {
	for _, f := range m.feeds {
		if f.FeedNo == feedNo {
			cp := f
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memSchedules) CreateFeed(ctx context.Context, f *models.FeedSchedule) error {
	f.FeedNo = len(m.feeds) + 1
	f.Label = fmt.Sprintf("Schedule %d", f.FeedNo)
	m.feeds = append(m.feeds, *f)
	return nil
}

func (m *memSchedules) UpdateFeedTime(ctx context.Context, userID uuid.UUID, feedNo int, t models.ClockTime) error {
	for i := range m.feeds {
		if m.feeds[i].FeedNo == feedNo {
			m.feeds[i].Time = t
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memSchedules) DeleteFeed(ctx context.Context, userID uuid.UUID, feedNo int) error {
	for i := range m.feeds {
		if m.feeds[i].FeedNo == feedNo {
			m.feeds = append(m.feeds[:i], m.feeds[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memSchedules) GetWatering(ctx context.Context, userID uuid.UUID) (*models.WateringSchedule, error) {
	if m.watering == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *m.watering
	return &cp, nil
}

func (m *memSchedules) UpsertWatering(ctx context.Context, w *models.WateringSchedule) error {
	cp := *w
	m.watering = &cp
	return nil
}

func (m *memSchedules) DeleteWatering(ctx context.Context, userID uuid.UUID) error {
	if m.watering == nil {
		return repositories.ErrNotFound
	}
	m.watering = nil
	return nil
}

func (m *memSchedules) GetNightTime(ctx context.Context, userID uuid.UUID) (*models.NightTime, error) {
	if m.night == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *m.night
	return &cp, nil
}

func (m *memSchedules) UpsertNightTime(ctx context.Context, n *models.NightTime) error {
	cp := *n
	m.night = &cp
	return nil
}

type collectionLogs struct {
	mu   sync.Mutex
	seen []string
}

func (l *collectionLogs) Append(ctx context.Context, rec models.NewLogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, rec.Collection)
	return nil
}

func TestScheduleHandlers(t *testing.T) {
	me := &models.User{ID: uuid.New(), FirstName: "Juan", LastName: "Dela Cruz", Email: "juan@tsiken.ph", Role: models.RoleUser}
	logs := &collectionLogs{}
	svc := services.NewScheduleService(&memSchedules{}, newMemUsers(me), logs, time.FixedZone("PHT", 8*3600), zap.NewNop())
	h := NewScheduleHandler(svc, zap.NewNop())

	app := fiber.New()
	app.Use(as(me.ID, me.Email, me.Role))
	app.Get("/schedules/feeds", h.ListFeeds)
	app.Post("/schedules/feeds", h.AddFeed)
	app.Put("/schedules/feeds/:id", h.UpdateFeed)
	app.Delete("/schedules/feeds/:id", h.DeleteFeed)
	app.Get("/schedules/watering", h.GetWatering)
	app.Put("/schedules/watering", h.SaveWatering)
	app.Delete("/schedules/watering", h.DeleteWatering)
	app.Get("/schedules/night-time", h.GetNightTime)
	app.Put("/schedules/night-time", h.SetNightTime)

	status, env := do(t, app, "POST", "/schedules/feeds", `{"time":"06:30"}`)
	require.Equal(t, fiber.StatusCreated, status)
	var feed models.FeedSchedule
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	assert.Equal(t, 1, feed.FeedNo)
	assert.Equal(t, "06:30", feed.Time.String())

	status, _ = do(t, app, "POST", "/schedules/feeds", `{"time":"06:30"}`)
	assert.Equal(t, fiber.StatusConflict, status)

	status, env = do(t, app, "POST", "/schedules/feeds", `{"time":"6pm"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, env.Fields, "time")

	status, _ = do(t, app, "PUT", "/schedules/feeds/abc", `{"time":"07:00"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = do(t, app, "PUT", "/schedules/feeds/9", `{"time":"07:00"}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, app, "PUT", "/schedules/feeds/1", `{"time":"07:00"}`)
	require.Equal(t, fiber.StatusOK, status)
	status, env = do(t, app, "GET", "/schedules/feeds", "")
	require.Equal(t, fiber.StatusOK, status)
	var feeds []models.FeedSchedule
	require.NoError(t, json.Unmarshal(env.Data, &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, "07:00", feeds[0].Time.String())

	status, _ = do(t, app, "DELETE", "/schedules/feeds/1", "")
	assert.Equal(t, fiber.StatusNoContent, status)

	at := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	status, _ = do(t, app, "PUT", "/schedules/watering", fmt.Sprintf(`{"scheduled_at":%q,"liters":2,"duration_minutes":10}`, at))
	require.Equal(t, fiber.StatusOK, status)
	status, env = do(t, app, "GET", "/schedules/watering", "")
	require.Equal(t, fiber.StatusOK, status)
	var w models.WateringSchedule
	require.NoError(t, json.Unmarshal(env.Data, &w))
	assert.Equal(t, 10, w.DurationMinutes)
	status, _ = do(t, app, "DELETE", "/schedules/watering", "")
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = do(t, app, "PUT", "/schedules/night-time", `{"time":"18:30"}`)
	require.Equal(t, fiber.StatusOK, status)
	status, env = do(t, app, "GET", "/schedules/night-time", "")
	require.Equal(t, fiber.StatusOK, status)
	var n models.NightTime
	require.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, "18:30", n.StartsAt.String())

	assert.Equal(t, []string{
		models.CollectionAddFeedSchedule,
		models.CollectionEditFeedSchedule,
		models.CollectionDeleteFeedSchedule,
		models.CollectionAddWaterSchedule,
		models.CollectionWateringActivity,
		models.CollectionDeleteWaterSched,
		models.CollectionNightTime,
	}, logs.seen)
}
