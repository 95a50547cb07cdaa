// Package storage wraps the transactional key-value store the engine
// coordinates through. All cross-request state lives here; engine processes
// hold no locks of their own, so correctness comes entirely from the store's
// watch + conditional-transaction semantics.
package storage

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"match-lobby-system/models"
)

// ErrConflict reports that an optimistic transaction lost its race: a watched
// key changed between the read and the commit. The write did not happen and
// it is always safe to retry from scratch.
var ErrConflict = eris.New("optimistic transaction conflict")

// wrapDriver tags a failed store command with models.ErrUnavailable so callers
// can tell an unreachable store apart from a gameplay rule violation.
func wrapDriver(err error, msg string) error {
	if err == nil {
		return nil
	}
	return eris.Wrap(errors.Join(models.ErrUnavailable, err), msg)
}

// Store is a thin typed layer over a redis client. Safe for concurrent use.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying connection for wiring and health checks.
func (s *Store) Client() *redis.Client { return s.client }

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return wrapDriver(s.client.Ping(ctx).Err(), "storage unreachable")
}

// GetJSON loads and decodes the value at key. found is false when the key
// does not exist.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	bz, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if eris.Is(eris.Cause(err), redis.Nil) {
			return false, nil
		}
		return false, wrapDriver(err, "get failed")
	}
	if err := json.Unmarshal(bz, dest); err != nil {
		return false, eris.Wrap(err, "decode failed")
	}
	return true, nil
}

// SetJSON encodes and stores value at key with no expiry.
func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	bz, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "encode failed")
	}
	return wrapDriver(s.client.Set(ctx, key, bz, 0).Err(), "set failed")
}

// SetJSONTTL encodes and stores value at key, expiring after ttl.
func (s *Store) SetJSONTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	bz, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "encode failed")
	}
	return wrapDriver(s.client.Set(ctx, key, bz, ttl).Err(), "set failed")
}

// GetInt64 reads an integer counter; missing keys read as zero.
func (s *Store) GetInt64(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if eris.Is(eris.Cause(err), redis.Nil) {
			return 0, nil
		}
		return 0, wrapDriver(err, "get failed")
	}
	return n, nil
}

// ZRangeAsc returns up to limit members of a sorted set, lowest score first.
func (s *Store) ZRangeAsc(ctx context.Context, key string, limit int64) ([]string, error) {
	members, err := s.client.ZRange(ctx, key, 0, limit-1).Result()
	return members, wrapDriver(err, "zrange failed")
}

// ZRangeDesc returns up to limit members of a sorted set, highest score first.
func (s *Store) ZRangeDesc(ctx context.Context, key string, limit int64) ([]string, error) {
	members, err := s.client.ZRevRange(ctx, key, 0, limit-1).Result()
	return members, wrapDriver(err, "zrevrange failed")
}

// ZRangeScoreBetween returns members whose score falls in [min, max],
// lowest first.
func (s *Store) ZRangeScoreBetween(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	return members, wrapDriver(err, "zrangebyscore failed")
}

// ZCard returns the cardinality of a sorted set.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	return n, wrapDriver(err, "zcard failed")
}

// SCard returns the cardinality of a set.
func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	return n, wrapDriver(err, "scard failed")
}

// Atomically runs fn under a WATCH on watchKeys. Reads inside fn go through
// the Tx; writes must be queued via Tx.Exec, which commits them only if no
// watched key changed since the watch began. A lost race returns ErrConflict
// and leaves no partial state; any other error from fn passes through as-is.
func (s *Store) Atomically(ctx context.Context, fn func(tx *Tx) error, watchKeys ...string) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(&Tx{rtx: rtx})
	}, watchKeys...)
	if err != nil {
		if eris.Is(eris.Cause(err), redis.TxFailedErr) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Tx is the handle passed to an Atomically body: reads under the watch plus
// a single conditional commit.
type Tx struct {
	rtx *redis.Tx
}

// GetJSON loads and decodes key inside the watched transaction. found is
// false when the key does not exist.
func (t *Tx) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	bz, err := t.rtx.Get(ctx, key).Bytes()
	if err != nil {
		if eris.Is(eris.Cause(err), redis.Nil) {
			return false, nil
		}
		return false, wrapDriver(err, "get failed")
	}
	if err := json.Unmarshal(bz, dest); err != nil {
		return false, eris.Wrap(err, "decode failed")
	}
	return true, nil
}

// GetString loads a raw string value. found is false when the key is absent.
func (t *Tx) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := t.rtx.Get(ctx, key).Result()
	if err != nil {
		if eris.Is(eris.Cause(err), redis.Nil) {
			return "", false, nil
		}
		return "", false, wrapDriver(err, "get failed")
	}
	return val, true, nil
}

// Exec queues the writes built by fn into a MULTI/EXEC block conditioned on
// the watched keys. go-redis surfaces a failed EXEC as TxFailedErr, which
// Atomically maps to ErrConflict.
func (t *Tx) Exec(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	_, err := t.rtx.TxPipelined(ctx, fn)
	return err
}

// PipeSetJSON queues a JSON write on a transaction pipeline.
func PipeSetJSON(ctx context.Context, pipe redis.Pipeliner, key string, value any) error {
	bz, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "encode failed")
	}
	pipe.Set(ctx, key, bz, 0)
	return nil
}

// PipeSetNXJSON queues a JSON write that only lands when the key is absent.
func PipeSetNXJSON(ctx context.Context, pipe redis.Pipeliner, key string, value any) error {
	bz, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "encode failed")
	}
	pipe.SetNX(ctx, key, bz, 0)
	return nil
}

func formatScore(f float64) string {
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsInf(f, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
