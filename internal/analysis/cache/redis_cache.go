package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

// DefaultNamespace prefixes every cache key.
const DefaultNamespace = "menu_analysis"

const scanCount = 200

// RedisResultCache stores one JSON CacheEntry per fingerprint under
// "<namespace>_<fingerprint>". Entries never expire; Prune is the only
// eviction.
type RedisResultCache struct {
	rdb       redis.Cmdable
	namespace string
	now       func() time.Time
}

var _ model.ResultCache = (*RedisResultCache)(nil)

func NewRedisResultCache(rdb redis.Cmdable, namespace string) *RedisResultCache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisResultCache{rdb: rdb, namespace: namespace, now: time.Now}
}

func (c *RedisResultCache) key(fingerprint string) string {
	return c.namespace + "_" + fingerprint
}

func (c *RedisResultCache) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error) {
	key := c.key(fingerprint)
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to read cache entry from redis")
		return nil, errx.WrapRedis(err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal cache entry")
		return nil, fmt.Errorf("unmarshal cache entry %s: %w", key, err)
	}
	return &entry, nil
}

func (c *RedisResultCache) Put(ctx context.Context, fingerprint string, response *model.AnalysisResponse, meta model.CacheMeta) error {
	if response == nil {
		return fmt.Errorf("cache response is nil")
	}
	now := c.now().UTC()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = now
	}
	entry := model.CacheEntry{
		Key:       fingerprint,
		Response:  *response,
		Meta:      meta,
		Timestamp: now,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		logx.Error().Err(err).Str("fingerprint", fingerprint).Msg("failed to marshal cache entry")
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := c.key(fingerprint)
	if err := c.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write cache entry to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// List returns every entry under the namespace, newest first. Entries that
// no longer decode are skipped.
func (c *RedisResultCache) List(ctx context.Context) ([]*model.CacheEntry, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*model.CacheEntry{}, nil
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logx.Error().Err(err).Str("namespace", c.namespace).Msg("failed to read cache entries from redis")
		return nil, errx.WrapRedis(err)
	}

	entries := make([]*model.CacheEntry, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		var entry model.CacheEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			logx.Warn().Err(err).Str("key", keys[i]).Msg("skipping undecodable cache entry")
			continue
		}
		entries = append(entries, &entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

// Prune deletes entries stored before the cutoff.
func (c *RedisResultCache) Prune(ctx context.Context, before time.Time) (int, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, e := range entries {
		if e.Timestamp.Before(before) {
			stale = append(stale, c.key(e.Key))
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := c.rdb.Del(ctx, stale...).Result()
	if err != nil {
		logx.Error().Err(err).Int("keys", len(stale)).Msg("failed to prune cache entries")
		return 0, errx.WrapRedis(err)
	}
	logx.Info().Str("namespace", c.namespace).Int64("removed", n).Time("before", before).Msg("Pruned analysis cache")
	return int(n), nil
}

// keys scans every key under the namespace prefix.
func (c *RedisResultCache) keys(ctx context.Context) ([]string, error) {
	match := escapeGlob(c.namespace) + "_*"
	var (
		cursor uint64
		out    []string
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			logx.Error().Err(err).Str("match", match).Msg("failed to scan cache keys")
			return nil, errx.WrapRedis(err)
		}
		out = append(out, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	// SCAN may return a key more than once
	slices.Sort(out)
	return slices.Compact(out), nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`).Replace(s)
}
