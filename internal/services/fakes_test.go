package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/events"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: map[uuid.UUID]*models.User{}}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeUsers) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.MobileNumber == mobile {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) List(ctx context.Context, _ repositories.UserFilter) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.User{}
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsers) update(id uuid.UUID, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, u *models.User) error {
	return f.update(u.ID, func(dst *models.User) {
		dst.FirstName, dst.MiddleName, dst.LastName, dst.MobileNumber = u.FirstName, u.MiddleName, u.LastName, u.MobileNumber
	})
}

func (f *fakeUsers) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	return f.update(id, func(u *models.User) { u.Role = role })
}

func (f *fakeUsers) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	return f.update(id, func(u *models.User) { u.AccountLocked = locked })
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return f.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (f *fakeUsers) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return f.update(id, func(u *models.User) { u.LastLogin = &now })
}

func (f *fakeUsers) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type fakeLogs struct {
	mu      sync.Mutex
	records []models.NewLogRecord
	err     error
}

func (f *fakeLogs) Append(ctx context.Context, rec models.NewLogRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLogs) byCollection(coll string) []models.NewLogRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.NewLogRecord
	for _, r := range f.records {
		if r.Collection == coll {
			out = append(out, r)
		}
	}
	return out
}

type fakeMailer struct {
	accounts chan AccountEmail
	resets   chan PasswordResetEmail
	err      error

	mu     sync.Mutex
	ctxErr error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{accounts: make(chan AccountEmail, 4), resets: make(chan PasswordResetEmail, 4)}
}

func (m *fakeMailer) SendAccountEmail(ctx context.Context, msg AccountEmail) error {
	m.mu.Lock()
	m.ctxErr = ctx.Err()
	m.mu.Unlock()
	m.accounts <- msg
	return m.err
}

func (m *fakeMailer) SendPasswordReset(ctx context.Context, msg PasswordResetEmail) error {
	if m.err != nil {
		return m.err
	}
	m.resets <- msg
	return nil
}

type fakeDetections struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.PredatorDetection
	err  error
}

func newFakeDetections() *fakeDetections {
	return &fakeDetections{rows: map[uuid.UUID]*models.PredatorDetection{}}
}

func (f *fakeDetections) Create(ctx context.Context, d *models.PredatorDetection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	d.ID = uuid.New()
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeDetections) GetByID(ctx context.Context, id uuid.UUID) (*models.PredatorDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDetections) List(ctx context.Context, flt repositories.DetectionFilter) ([]models.PredatorDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.PredatorDetection{}
	for _, d := range f.rows {
		if flt.UserID != nil && d.UserID != *flt.UserID {
			continue
		}
		if flt.Status != nil && d.Status != *flt.Status {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDetections) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	d.Status = status
	return nil
}

func (f *fakeDetections) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeSnapshots struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{objects: map[string][]byte{}}
}

func (f *fakeSnapshots) SaveSnapshot(ctx context.Context, userID string, at time.Time, jpeg []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "predator_detections/" + userID + "/" + at.Format("20060102150405") + ".jpg"
	f.objects[key] = jpeg
	return key, nil
}

func (f *fakeSnapshots) PresignedURL(ctx context.Context, key string) (string, error) {
	return "https://blob.local/" + key, nil
}

func (f *fakeSnapshots) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type fakeCamera struct {
	frame    *Detections
	frameErr error
	jpeg     []byte
	online   string
}

func (c *fakeCamera) Detections(ctx context.Context, serverURL string) (*Detections, error) {
	return c.frame, c.frameErr
}

func (c *fakeCamera) Snapshot(ctx context.Context, serverURL string) ([]byte, error) {
	if c.jpeg == nil {
		return nil, errors.New("camera offline")
	}
	return c.jpeg, nil
}

func (c *fakeCamera) Discover(ctx context.Context, candidates []string) (string, bool) {
	for _, u := range candidates {
		if u == c.online {
			return u, true
		}
	}
	return "", false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, stream string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fakeSensors struct {
	readings []models.SensorReading
}

func (f *fakeSensors) AddReading(ctx context.Context, rd *models.SensorReading) error {
	rd.ID = int64(len(f.readings) + 1)
	f.readings = append(f.readings, *rd)
	return nil
}

func (f *fakeSensors) RecomputeAverages(ctx context.Context) (int64, error) {
	return int64(len(f.readings)), nil
}

func (f *fakeSensors) Averages(ctx context.Context, userID *uuid.UUID) ([]models.SensorAverage, error) {
	return []models.SensorAverage{}, nil
}

type fakeSchedules struct {
	mu       sync.Mutex
	feeds    map[uuid.UUID][]models.FeedSchedule
	watering map[uuid.UUID]models.WateringSchedule
	night    map[uuid.UUID]models.NightTime
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{
		feeds:    map[uuid.UUID][]models.FeedSchedule{},
		watering: map[uuid.UUID]models.WateringSchedule{},
		night:    map[uuid.UUID]models.NightTime{},
	}
}

func (f *fakeSchedules) ListFeeds(ctx context.Context, userID uuid.UUID) ([]models.FeedSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.FeedSchedule{}, f.feeds[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (f *fakeSchedules) GetFeed(ctx context.Context, userID uuid.UUID, feedNo int) (*models.FeedSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fd := range f.feeds[userID] {
		if fd.FeedNo == feedNo {
			cp := fd
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeSchedules) CreateFeed(ctx context.Context, fd *models.FeedSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := 1
	for _, e := range f.feeds[fd.UserID] {
		if e.FeedNo >= next {
			next = e.FeedNo + 1
		}
	}
	fd.FeedNo = next
	fd.Label = fmt.Sprintf("Schedule %d", next)
	fd.UpdatedAt = time.Now()
	f.feeds[fd.UserID] = append(f.feeds[fd.UserID], *fd)
	return nil
}

func (f *fakeSchedules) UpdateFeedTime(ctx context.Context, userID uuid.UUID, feedNo int, t models.ClockTime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fd := range f.feeds[userID] {
		if fd.FeedNo == feedNo {
			f.feeds[userID][i].Time = t
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeSchedules) DeleteFeed(ctx context.Context, userID uuid.UUID, feedNo int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	feeds := f.feeds[userID]
	for i, fd := range feeds {
		if fd.FeedNo == feedNo {
			f.feeds[userID] = append(feeds[:i:i], feeds[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeSchedules) GetWatering(ctx context.Context, userID uuid.UUID) (*models.WateringSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watering[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &w, nil
}

func (f *fakeSchedules) UpsertWatering(ctx context.Context, w *models.WateringSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.UpdatedAt = time.Now()
	f.watering[w.UserID] = *w
	return nil
}

func (f *fakeSchedules) DeleteWatering(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watering[userID]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.watering, userID)
	return nil
}

func (f *fakeSchedules) GetNightTime(ctx context.Context, userID uuid.UUID) (*models.NightTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.night[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &n, nil
}

func (f *fakeSchedules) UpsertNightTime(ctx context.Context, n *models.NightTime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.UpdatedAt = time.Now()
	f.night[n.UserID] = *n
	return nil
}
