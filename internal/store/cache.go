package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"certEngine/internal/certificate"
)

type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// missingMarker caches the absence of a template so batch runs over an
// unconfigured event do not hit the database once per attendee.
const missingMarker = "-"

// CachedStore 在 Backend 之上为模板读取加一层 Redis 读穿缓存。
// Redis 故障不影响读取，直接回落到数据库。
type CachedStore struct {
	Backend
	redis  cacheClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps next. A non-positive ttl disables caching.
func NewCachedStore(next Backend, client cacheClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Backend: next, redis: client, ttl: ttl, logger: logger}
}

func templateCacheKey(eventID uint, kind certificate.Kind) string {
	return fmt.Sprintf("cert_template:%d:%s", eventID, kind)
}

type cachedTemplate struct {
	ImageURL string                  `json:"imageUrl"`
	Fields   []certificate.TextField `json:"fields"`
}

// GetTemplate serves from redis when possible.
func (s *CachedStore) GetTemplate(ctx context.Context, eventID uint, kind certificate.Kind) (certificate.Template, error) {
	if s.ttl <= 0 || s.redis == nil {
		return s.Backend.GetTemplate(ctx, eventID, kind)
	}
	key := templateCacheKey(eventID, kind)
	log := s.logger.With(slog.String("key", key))

	raw, err := s.redis.Get(ctx, key).Result()
	switch {
	case err == nil && raw == missingMarker:
		return certificate.Template{}, fmt.Errorf("template %d/%s: %w", eventID, kind, certificate.ErrNotFound)
	case err == nil:
		var c cachedTemplate
		if jsonErr := json.Unmarshal([]byte(raw), &c); jsonErr == nil {
			return certificate.Template{EventID: eventID, Kind: kind, ImageURL: c.ImageURL, Fields: c.Fields}, nil
		}
		log.Warn("discarding undecodable cached template")
	case !errors.Is(err, redis.Nil):
		log.Warn("template cache read failed", slog.String("error", err.Error()))
	}

	t, err := s.Backend.GetTemplate(ctx, eventID, kind)
	switch {
	case err == nil:
		payload, _ := json.Marshal(cachedTemplate{ImageURL: t.ImageURL, Fields: t.Fields})
		s.store(ctx, key, string(payload), log)
	case errors.Is(err, certificate.ErrNotFound):
		s.store(ctx, key, missingMarker, log)
	}
	return t, err
}

// PutTemplate writes through and invalidates the cached copy.
func (s *CachedStore) PutTemplate(ctx context.Context, t certificate.Template) error {
	if err := s.Backend.PutTemplate(ctx, t); err != nil {
		return err
	}
	if s.redis == nil {
		return nil
	}
	key := templateCacheKey(t.EventID, t.Kind)
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("template cache invalidation failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

func (s *CachedStore) store(ctx context.Context, key, value string, log *slog.Logger) {
	if err := s.redis.Set(ctx, key, value, s.ttl).Err(); err != nil {
		log.Warn("template cache write failed", slog.String("error", err.Error()))
	}
}
