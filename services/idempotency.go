package services

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"match-lobby-system/models"
	"match-lobby-system/storage"
)

// TTLs for cached responses. A repeated call after expiry is treated as new.
const (
	MutationCacheTTL = time.Hour
	ReadCacheTTL     = 5 * time.Minute
)

// idempotencyRecord is the stored envelope for one request key: either the
// serialized success body or the stable code of the error the first call
// produced. Replays return the same outcome either way.
type idempotencyRecord struct {
	Body     json.RawMessage `json:"body,omitempty"`
	ErrCode  string          `json:"err_code,omitempty"`
	CachedAt time.Time       `json:"cached_at"`
}

// IdempotencyCache caches mutation results in the shared store (not in
// process memory) so replay protection holds across engine instances.
type IdempotencyCache struct {
	store *storage.Store
}

func NewIdempotencyCache(store *storage.Store) *IdempotencyCache {
	return &IdempotencyCache{store: store}
}

// Replay wraps an operation with request-key replay protection. An empty key
// disables caching. On a cache hit the stored response is returned without
// re-executing fn, preserving the original error category; on a miss fn runs
// once and its outcome (success or engine error) is stored for ttl.
//
// The check → execute → store sequence is not one atomic unit with the domain
// transaction; a crash between the commit and the cache write can let a
// retried request execute twice. Accepted trade-off, see DESIGN.md.
func Replay[T any](ctx context.Context, c *IdempotencyCache, requestKey string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if c == nil || requestKey == "" {
		return fn()
	}

	key := storage.IdempotencyKey(requestKey)
	var rec idempotencyRecord
	found, err := c.store.GetJSON(ctx, key, &rec)
	if err != nil {
		return zero, eris.Wrap(err, "idempotency lookup failed")
	}
	if found {
		var cached T
		if len(rec.Body) > 0 {
			if err := json.Unmarshal(rec.Body, &cached); err != nil {
				return zero, eris.Wrap(err, "cached response corrupt")
			}
		}
		if rec.ErrCode != "" {
			// AlreadyWaiting replays carry the existing match alongside the error
			return cached, models.ErrorFromCode(rec.ErrCode)
		}
		return cached, nil
	}

	result, opErr := fn()
	rec = idempotencyRecord{CachedAt: time.Now().UTC()}
	if opErr != nil {
		code := models.ErrorCode(opErr)
		if code == "" || code == models.CodeUnavailable {
			// infrastructure failures are not outcomes; never pin them
			return result, opErr
		}
		rec.ErrCode = code
	}
	body, err := json.Marshal(result)
	if err != nil {
		return result, eris.Wrap(err, "encode response failed")
	}
	rec.Body = body

	if err := c.store.SetJSONTTL(ctx, key, rec, ttl); err != nil {
		// the operation itself landed; losing the cache entry only weakens
		// replay protection for this key
		log.Warn().Err(err).Str("request_key", requestKey).Msg("failed to store idempotency record")
	}
	return result, opErr
}
