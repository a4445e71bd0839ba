package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Cache stores opaque byte values under string keys with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Name() string
}

// Remember returns the cached value under key, or calls fn, caches its
// result for ttl and returns it. Errors from fn are returned and never cached.
// A failing backend degrades to calling fn directly.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	log := zerolog.Ctx(ctx)

	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	v, err := fn()
	if err != nil {
		return v, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return v, nil
	}
	if err := c.Set(ctx, key, encoded, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}

// Keys builds cache keys of the form
// prefix + type + "_" + md5(apiKey)[:8] [+ "_" + md5(json(params))].
type Keys struct {
	Prefix string
}

func (k Keys) Key(lookup, apiKey string, params map[string]string) string {
	key := k.TypePrefix(lookup, apiKey)
	if len(params) == 0 {
		return key
	}
	// encoding/json sorts map keys, so equal params hash equally.
	encoded, _ := json.Marshal(params)
	return key + "_" + hexMD5(encoded)
}

// TypePrefix is the common prefix of every key cached for lookup and apiKey.
func (k Keys) TypePrefix(lookup, apiKey string) string {
	return k.Prefix + lookup + "_" + hexMD5([]byte(apiKey))[:8]
}

func hexMD5(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
