package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// HashKey joins parts and hashes them into a fixed-length key
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

// Namespace groups keys that are invalidated together. Every key embeds the
// namespace generation; Invalidate bumps the generation so old entries are
// never read again and simply expire.
type Namespace struct {
	cache Cache
	name  string
	ttl   time.Duration
}

// NewNamespace creates a namespace on c
func NewNamespace(c Cache, name string, ttl time.Duration) *Namespace {
	return &Namespace{cache: c, name: name, ttl: ttl}
}

func (n *Namespace) generationKey() string {
	return n.name + ":gen"
}

// Key returns the versioned key for parts under the current generation
func (n *Namespace) Key(ctx context.Context, parts ...string) (string, error) {
	gen, err := n.cache.Counter(ctx, n.generationKey())
	if err != nil {
		return "", err
	}
	return n.name + ":" + strconv.FormatInt(gen, 10) + ":" + HashKey(parts...), nil
}

// Invalidate moves the namespace to a new generation
func (n *Namespace) Invalidate(ctx context.Context) error {
	_, err := n.cache.Incr(ctx, n.generationKey())
	return err
}

// Generation returns the current generation
func (n *Namespace) Generation(ctx context.Context) (int64, error) {
	return n.cache.Counter(ctx, n.generationKey())
}

// Remember returns the cached JSON value for parts, or calls load and caches
// its result. Cache failures fall through to load; errors from load are
// returned and nothing is cached.
func Remember[T any](ctx context.Context, n *Namespace, load func(context.Context) (T, error), parts ...string) (T, bool, error) {
	key, err := n.Key(ctx, parts...)
	if err == nil {
		if data, err := n.cache.Get(ctx, key); err == nil {
			var v T
			if json.Unmarshal(data, &v) == nil {
				return v, true, nil
			}
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, false, err
	}

	if key != "" {
		if data, err := json.Marshal(v); err == nil {
			_ = n.cache.Set(ctx, key, data, n.ttl)
		}
	}
	return v, false, nil
}
