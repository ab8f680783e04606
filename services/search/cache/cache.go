package cachesvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

const (
	keyPrefix  = "search:"
	defaultTTL = 6 * time.Hour
)

// Store is the part of a redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

var _ Store = (*redis.Client)(nil)

// Provider caches the results of another provider.
// Cache failures are logged and never fail a search.
type Provider struct {
	next   tutor.SearchProvider
	store  Store
	ttl    time.Duration
	logger core.Logger
}

var _ tutor.SearchProvider = (*Provider)(nil)

func New(next tutor.SearchProvider, store Store, ttl time.Duration, logger core.Logger) *Provider {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Provider{next: next, store: store, ttl: ttl, logger: logger}
}

// NewClient connects to redis and pings it.
func NewClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "pinging redis at %s", conf.Addr)
	}
	return client, nil
}

func (p *Provider) Search(ctx context.Context, query string) ([]string, error) {
	key := Key(query)

	data, err := p.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var urls []string
		if err := json.Unmarshal(data, &urls); err == nil {
			return urls, nil
		}
		p.logger.Warn(fmt.Sprintf("search cache: corrupt entry %s", key))
	case err != redis.Nil:
		p.logger.Warn(fmt.Sprintf("search cache: get %s: %v", key, err), err)
	}

	urls, err := p.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}

	data, _ = json.Marshal(urls)
	if err := p.store.Set(ctx, key, data, p.ttl).Err(); err != nil {
		p.logger.Warn(fmt.Sprintf("search cache: set %s: %v", key, err), err)
	}
	return urls, nil
}

// Key is the cache key of a query; queries differing only in case or spacing share it.
func Key(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(norm))
	return keyPrefix + hex.EncodeToString(sum[:])
}
