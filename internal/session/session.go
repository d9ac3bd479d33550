// Package session keeps the per-device admin session in Redis.
//
// A session is valid only while an admin identity is signed in, its email
// matches the stored admin email, and the stored timestamp is no older than
// the timeout. Every failed validation clears the session. The devices that
// hold a session for an email are indexed so they can be revoked together.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

const DefaultTimeout = 24 * time.Hour

const (
	keyIsAdmin   = "isAdminBypass"
	keyEmail     = "adminEmail"
	keyTimestamp = "adminSessionTimestamp"
	keyRole      = "adminRole"
)

type Store struct {
	rdb     *redis.Client
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(rdb *redis.Client, timeout time.Duration, log *zap.Logger, opts ...Option) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Store{rdb: rdb, timeout: timeout, now: time.Now, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

func key(deviceID string) string {
	return fmt.Sprintf("admin_session:%s", deviceID)
}

func devicesKey(email string) string {
	return fmt.Sprintf("admin_devices:%s", strings.ToLower(email))
}

// Validation is the outcome of Validate.
type Validation struct {
	Valid  bool   `json:"valid"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Store) Create(ctx context.Context, deviceID, email, role string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if role == "" {
		role = models.RoleAdmin
	}
	k := key(deviceID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, map[string]any{
		keyIsAdmin:   "true",
		keyEmail:     email,
		keyTimestamp: s.now().UTC().Format(time.RFC3339Nano),
		keyRole:      role,
	})
	// Keep the key around a little past the timeout so Validate can report expiry.
	pipe.Expire(ctx, k, 2*s.timeout)
	pipe.SAdd(ctx, devicesKey(email), deviceID)
	pipe.Expire(ctx, devicesKey(email), 2*s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create admin session: %w", err)
	}
	s.log.Info("admin session created", zap.String("email", email), zap.String("device_id", deviceID))
	return nil
}

// Validate checks the device's session against the current identity and
// bumps its timestamp when valid. identity may be nil.
func (s *Store) Validate(ctx context.Context, deviceID string, identity *models.Identity) (Validation, error) {
	invalid := func(reason string) (Validation, error) {
		if err := s.Clear(ctx, deviceID); err != nil {
			return Validation{Reason: reason}, err
		}
		return Validation{Reason: reason}, nil
	}

	if deviceID == "" {
		return Validation{Reason: "missing device id"}, nil
	}
	if identity == nil || identity.Email == "" {
		return invalid("not signed in")
	}

	vals, err := s.rdb.HGetAll(ctx, key(deviceID)).Result()
	if err != nil {
		return Validation{Reason: "session store unavailable"}, fmt.Errorf("read admin session: %w", err)
	}

	if vals[keyIsAdmin] != "true" || vals[keyEmail] == "" || vals[keyTimestamp] == "" {
		return invalid("no admin session")
	}
	if !strings.EqualFold(vals[keyEmail], identity.Email) {
		s.log.Warn("admin email mismatch, clearing session", zap.String("device_id", deviceID))
		return invalid("email mismatch")
	}
	if identity.Role != models.RoleAdmin {
		s.log.Warn("admin session held by non-admin, clearing", zap.String("device_id", deviceID))
		return invalid("not an admin")
	}

	ts, err := time.Parse(time.RFC3339Nano, vals[keyTimestamp])
	if err != nil {
		return invalid("corrupt timestamp")
	}
	if s.now().Sub(ts) > s.timeout {
		s.log.Info("admin session expired", zap.String("device_id", deviceID))
		return invalid("expired")
	}

	if err := s.touch(ctx, deviceID); err != nil {
		return Validation{}, err
	}

	role := vals[keyRole]
	if role == "" {
		role = models.RoleAdmin
	}
	return Validation{Valid: true, Email: vals[keyEmail], Role: role}, nil
}

func (s *Store) touch(ctx context.Context, deviceID string) error {
	k := key(deviceID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, keyTimestamp, s.now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, k, 2*s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh admin session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, key(deviceID)).Err(); err != nil {
		return fmt.Errorf("clear admin session: %w", err)
	}
	return nil
}

// ClearUser removes the session of every device signed in as email. Devices
// since reused by another admin are left alone. It returns how many sessions
// were removed.
func (s *Store) ClearUser(ctx context.Context, email string) (int, error) {
	dk := devicesKey(email)
	devices, err := s.rdb.SMembers(ctx, dk).Result()
	if err != nil {
		return 0, fmt.Errorf("list admin devices: %w", err)
	}

	cleared := 0
	for _, d := range devices {
		stored, err := s.rdb.HGet(ctx, key(d), keyEmail).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return cleared, fmt.Errorf("read admin session: %w", err)
		}
		if !strings.EqualFold(stored, email) {
			continue
		}
		if err := s.Clear(ctx, d); err != nil {
			return cleared, err
		}
		cleared++
	}
	if err := s.rdb.Del(ctx, dk).Err(); err != nil {
		return cleared, fmt.Errorf("clear admin devices: %w", err)
	}
	return cleared, nil
}

func (s *Store) IsAdmin(ctx context.Context, deviceID string, identity *models.Identity) (bool, error) {
	v, err := s.Validate(ctx, deviceID, identity)
	return v.Valid, err
}

// Refresh bumps the timestamp of a valid session. It reports false when the
// session was not valid.
func (s *Store) Refresh(ctx context.Context, deviceID string, identity *models.Identity) (bool, error) {
	return s.IsAdmin(ctx, deviceID, identity)
}

// Info returns the stored session without validating it.
func (s *Store) Info(ctx context.Context, deviceID string) (*models.AdminSession, error) {
	vals, err := s.rdb.HGetAll(ctx, key(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	info := &models.AdminSession{
		IsAdmin: vals[keyIsAdmin] == "true",
		Email:   vals[keyEmail],
		Role:    vals[keyRole],
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals[keyTimestamp]); err == nil {
		info.Timestamp = ts
	}
	return info, nil
}
