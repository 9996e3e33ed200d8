// Package cache provides the content-keyed caches used for specification and
// comparison summaries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// KeyContentLength is how much of the content feeds the cache key.
const KeyContentLength = 500

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// ContentKey hashes the first KeyContentLength characters of content.
func ContentKey(prefix, content string) string {
	runes := []rune(content)
	if len(runes) > KeyContentLength {
		runes = runes[:KeyContentLength]
	}
	hash := sha256.Sum256([]byte(string(runes)))
	return prefix + hex.EncodeToString(hash[:16])
}

func GetJSON(ctx context.Context, c Cache, key string, target any) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func SetJSON(ctx context.Context, c Cache, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(ctx, key, data)
}

// StatsReporter is implemented by caches that track their own usage.
type StatsReporter interface {
	Stats() map[string]any
}

// Tiered reads the local cache first and falls back to the remote one,
// copying remote hits into the local tier. Writes go to both.
type Tiered struct {
	local  Cache
	remote Cache
}

func NewTiered(local, remote Cache) *Tiered {
	return &Tiered{local: local, remote: remote}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.local.Get(ctx, key); ok {
		return value, true
	}
	if t.remote == nil {
		return nil, false
	}
	value, ok := t.remote.Get(ctx, key)
	if ok {
		t.local.Set(ctx, key, value)
	}
	return value, ok
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte) {
	t.local.Set(ctx, key, value)
	if t.remote != nil {
		t.remote.Set(ctx, key, value)
	}
}

func (t *Tiered) Stats() map[string]any {
	stats := map[string]any{"remote": t.remote != nil}
	if local, ok := t.local.(StatsReporter); ok {
		stats["local"] = local.Stats()
	}
	return stats
}
