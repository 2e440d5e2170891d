package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	responseCachePrefix = "reconciler:resp:v1:"
	cacheStatusHeader   = "X-Cache"
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// ResponseCache serves repeated GET requests from Redis for ttl. Only 200
// responses are stored, keyed by the full request URI. Pollers hitting the
// same listing within the window share one ledger pass.
func ResponseCache(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || ttl <= 0 || c.Method() != fiber.MethodGet {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 500*time.Millisecond)
		defer cancel()

		key := responseCachePrefix + c.OriginalURL()
		cached, err := cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var stored storedResponse
			if err := json.Unmarshal(cached, &stored); err == nil {
				for header, value := range stored.Headers {
					if strings.EqualFold(header, fiber.HeaderContentLength) {
						continue
					}
					c.Set(header, value)
				}
				c.Set(cacheStatusHeader, "HIT")
				return c.Status(stored.Status).SendString(stored.Body)
			}
			logger.Warn("discarding undecodable cached response", slog.String("key", key), slog.Any("error", err))
		case !errors.Is(err, redis.Nil):
			// fail open: the ledger stays the source of truth
			logger.Warn("response cache lookup failed", slog.String("key", key), slog.Any("error", err))
		}

		c.Set(cacheStatusHeader, "MISS")
		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}

		stored := storedResponse{
			Status:  fiber.StatusOK,
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			name := string(k)
			if strings.EqualFold(name, cacheStatusHeader) || strings.EqualFold(name, requestIDHeader) {
				return
			}
			stored.Headers[name] = string(v)
		})
		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode response for cache", slog.String("key", key), slog.Any("error", err))
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer persistCancel()
		if err := cache.Set(persistCtx, key, payload, ttl).Err(); err != nil {
			logger.Warn("failed to persist cached response", slog.String("key", key), slog.Any("error", err))
		}
		return nil
	}
}

// PurgeResponseCache drops every cached response.
func PurgeResponseCache(ctx context.Context, cache *redis.Client) error {
	if cache == nil {
		return nil
	}
	iter := cache.Scan(ctx, 0, responseCachePrefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := cache.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return cache.Del(ctx, batch...).Err()
	}
	return nil
}
