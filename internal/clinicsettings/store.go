// Package clinicsettings holds the runtime-tunable booking policy. The
// settings are read as an explicit snapshot per request and passed into
// the resolver and booking services; nothing caches them across requests.
package clinicsettings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const settingsKey = "clinic:settings"

// Settings is the booking policy snapshot.
type Settings struct {
	// BookingWindowDays bounds patient bookings to [tomorrow, today+N].
	BookingWindowDays int `json:"booking_window_days"`
	// CapacityEditWindowDays bounds planner edits to [today, today+N-1].
	CapacityEditWindowDays int `json:"capacity_edit_window_days"`
	// Timezone is the clinic's local zone; "today" is evaluated in it.
	Timezone string `json:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today returns midnight of the current clinic-local day.
func (s Settings) Today(now time.Time) time.Time {
	local := now.In(s.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Store persists settings in redis as a single JSON document.
type Store struct {
	redis    *redis.Client
	defaults Settings
}

// NewStore creates a settings store. defaults seed the snapshot until an
// admin writes one.
func NewStore(redisClient *redis.Client, defaults Settings) *Store {
	return &Store{redis: redisClient, defaults: defaults}
}

// Snapshot returns the current settings, or the defaults when none are
// stored.
func (s *Store) Snapshot(ctx context.Context) (Settings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return s.defaults, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("clinicsettings: get: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("clinicsettings: unmarshal: %w", err)
	}
	return settings, nil
}

// Update saves new settings.
func (s *Store) Update(ctx context.Context, settings Settings) error {
	if settings.BookingWindowDays <= 0 || settings.CapacityEditWindowDays <= 0 {
		return fmt.Errorf("clinicsettings: window sizes must be positive")
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return fmt.Errorf("clinicsettings: invalid timezone %q", settings.Timezone)
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinicsettings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinicsettings: set: %w", err)
	}
	return nil
}
