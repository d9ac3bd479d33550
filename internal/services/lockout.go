package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tsiken/backend/internal/apperr"
	"go.uber.org/zap"
)

// Lockout scopes
const (
	LockoutLogin = "login"
	LockoutReset = "reset"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = time.Hour
)

// Lockout counts failed attempts per subject (a device id, email or client
// address) and blocks the subject once the limit is reached. Attempts are
// forgotten after one lockout duration without a failure.
type Lockout struct {
	rdb      *redis.Client
	limit    int64
	duration time.Duration
	log      *zap.Logger
}

func NewLockout(rdb *redis.Client, limit int, duration time.Duration, log *zap.Logger) *Lockout {
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &Lockout{rdb: rdb, limit: int64(limit), duration: duration, log: log}
}

func lockKey(scope, subject string) string {
	return fmt.Sprintf("lockout:%s:%s", scope, subject)
}

func attemptsKey(scope, subject string) string {
	return fmt.Sprintf("lockout_attempts:%s:%s", scope, subject)
}

// Remaining returns how long subject stays locked, zero when it is not.
func (l *Lockout) Remaining(ctx context.Context, scope, subject string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, lockKey(scope, subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("read lockout: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// Fail records a failed attempt. It returns the lock duration when this
// attempt reached the limit, zero otherwise.
func (l *Lockout) Fail(ctx context.Context, scope, subject string) (time.Duration, error) {
	ak := attemptsKey(scope, subject)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, ak)
	pipe.Expire(ctx, ak, l.duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count failed attempt: %w", err)
	}
	if incr.Val() < l.limit {
		return 0, nil
	}

	pipe = l.rdb.TxPipeline()
	pipe.Set(ctx, lockKey(scope, subject), incr.Val(), l.duration)
	pipe.Del(ctx, ak)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("set lockout: %w", err)
	}
	l.log.Warn("too many failed attempts, subject locked",
		zap.String("scope", scope),
		zap.String("subject", subject),
		zap.Duration("duration", l.duration),
	)
	return l.duration, nil
}

// Reset forgets failed attempts after a success.
func (l *Lockout) Reset(ctx context.Context, scope, subject string) error {
	if err := l.rdb.Del(ctx, attemptsKey(scope, subject)).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// LockedOut is the error returned while a subject is locked.
func LockedOut(remaining time.Duration) *apperr.Error {
	return apperr.New(apperr.KindTooManyRequests,
		fmt.Sprintf("Too many failed attempts. Try again in %s.", FormatLockout(remaining)))
}

// FormatLockout renders a remaining lock time as MM:SS, or HH:MM:SS from one
// hour up. Partial seconds round up.
func FormatLockout(d time.Duration) string {
	total := int64((d + time.Second - 1) / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
