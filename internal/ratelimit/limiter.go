// Package ratelimit enforces per-user review request quotas. Counters are
// persisted in bbolt so restarts do not reset them.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSendQuota = []byte("send_quota")

// ErrQuotaExceeded is returned when a user has no sends left in the window
var ErrQuotaExceeded = errors.New("send quota exceeded")

// Config contains quota values. Zero disables a limit.
type Config struct {
	MessagesPerHour int `yaml:"messages_per_hour" json:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day" json:"messages_per_day"`
}

// Enabled reports whether any limit is set
func (c Config) Enabled() bool {
	return c.MessagesPerHour > 0 || c.MessagesPerDay > 0
}

// Counter tracks quota usage of one user
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// reset starts new windows once they have elapsed
func (c *Counter) reset(now time.Time) {
	if now.Sub(c.HourStart) >= time.Hour {
		c.HourlyCount = 0
		c.HourStart = now
	}
	if now.Sub(c.DayStart) >= 24*time.Hour {
		c.DailyCount = 0
		c.DayStart = now
	}
}

// Result contains the quota check result
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter tracks send quotas per user
type Limiter struct {
	db     *bolt.DB
	config Config
	now    func() time.Time
}

// NewLimiter creates a quota limiter on db
func NewLimiter(db *bolt.DB, cfg Config) (*Limiter, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSendQuota)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create send quota bucket: %w", err)
	}

	return &Limiter{
		db:     db,
		config: cfg,
		now:    time.Now,
	}, nil
}

// Open opens the bbolt file at path and creates a limiter on it
func Open(path string, cfg Config) (*Limiter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create quota directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open quota database: %w", err)
	}
	l, err := NewLimiter(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database
func (l *Limiter) Close() error {
	return l.db.Close()
}

// Allow consumes one send for userID if the quota permits it. The check and
// the increment happen in a single transaction.
func (l *Limiter) Allow(ctx context.Context, userID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	now := l.now()

	err := l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSendQuota)
		counter := load(bucket, userID, now)
		counter.reset(now)

		if l.config.MessagesPerHour > 0 && counter.HourlyCount >= l.config.MessagesPerHour {
			result.RetryAfter = counter.HourStart.Add(time.Hour).Sub(now)
			return nil
		}
		if l.config.MessagesPerDay > 0 && counter.DailyCount >= l.config.MessagesPerDay {
			result.RetryAfter = counter.DayStart.Add(24 * time.Hour).Sub(now)
			return nil
		}

		counter.HourlyCount++
		counter.DailyCount++
		result.Allowed = true
		result.Remaining = l.remaining(counter)

		data, err := json.Marshal(counter)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(userID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update send quota: %w", err)
	}
	return result, nil
}

// Usage returns the current counters for userID without consuming quota
func (l *Limiter) Usage(ctx context.Context, userID string) (*Counter, error) {
	now := l.now()
	var counter *Counter
	err := l.db.View(func(tx *bolt.Tx) error {
		counter = load(tx.Bucket(bucketSendQuota), userID, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	counter.reset(now)
	return counter, nil
}

// remaining returns the sends left in the tighter of the two windows, or
// -1 when unlimited.
func (l *Limiter) remaining(c *Counter) int {
	left := -1
	if l.config.MessagesPerHour > 0 {
		left = l.config.MessagesPerHour - c.HourlyCount
	}
	if l.config.MessagesPerDay > 0 {
		if d := l.config.MessagesPerDay - c.DailyCount; left < 0 || d < left {
			left = d
		}
	}
	return left
}

func load(bucket *bolt.Bucket, userID string, now time.Time) *Counter {
	if data := bucket.Get([]byte(userID)); data != nil {
		var c Counter
		if err := json.Unmarshal(data, &c); err == nil {
			return &c
		}
	}
	return &Counter{HourStart: now, DayStart: now}
}
