package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/domain"
	"availsdk/internal/infrastructure/sqlquery"

	"github.com/redis/go-redis/v9"
)

const (
	submissionCacheVersionKey = "availsdk:submissions:version"
	submissionCacheKeyPrefix  = "availsdk:submissions:v"
	defaultCacheTTL           = time.Hour
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// CachedRepository serves submission queries from redis. Every write bumps a version
// counter that is part of each cache key, so stale entries are never read.
type CachedRepository struct {
	*Repository
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedRepository(base *Repository, cfg CacheConfig) (*CachedRepository, error) {
	if base == nil {
		return nil, errors.New("base repository is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedRepository{Repository: base}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedRepository(base, client, cfg.TTL), nil
}

func newCachedRepository(base *Repository, client *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRepository{Repository: base, cache: client, ttl: ttl}
}

func (r *CachedRepository) Close() error {
	if r.cache != nil {
		_ = r.cache.Close()
	}
	return r.Repository.Close()
}

func (r *CachedRepository) StoreSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error {
	if err := r.Repository.StoreSubmissions(ctx, submissions); err != nil {
		return err
	}
	if len(submissions) > 0 {
		r.invalidate(ctx)
	}
	return nil
}

func (r *CachedRepository) DeleteSubmissionsFrom(ctx context.Context, network string, fromBlock uint64) error {
	if err := r.Repository.DeleteSubmissionsFrom(ctx, network, fromBlock); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedRepository) QuerySubmissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.SubmissionRecord, error) {
	if r.cache == nil {
		return r.Repository.QuerySubmissions(ctx, filter)
	}
	version, ok := r.version(ctx)
	if !ok {
		return r.Repository.QuerySubmissions(ctx, filter)
	}
	key := submissionCacheKey(version, filter)
	if cached, err := r.cache.Get(ctx, key).Bytes(); err == nil {
		var submissions []domain.SubmissionRecord
		if err := json.Unmarshal(cached, &submissions); err == nil {
			return submissions, nil
		}
	}

	submissions, err := r.Repository.QuerySubmissions(ctx, filter)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(submissions); err == nil {
		_ = r.cache.Set(ctx, key, payload, r.ttl).Err()
	}
	return submissions, nil
}

func (r *CachedRepository) version(ctx context.Context) (string, bool) {
	version, err := r.cache.Get(ctx, submissionCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (r *CachedRepository) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Incr(ctx, submissionCacheVersionKey).Err()
}

func submissionCacheKey(version string, filter application.SubmissionQueryFilter) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(submissionCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":net=")
	b.WriteString(orAny(filter.Network))
	b.WriteString(":app=")
	if filter.AppID != nil {
		b.WriteString(strconv.FormatUint(uint64(*filter.AppID), 10))
	} else {
		b.WriteString("any")
	}
	b.WriteString(":signer=")
	b.WriteString(orAny(filter.Signer))
	b.WriteString(":tx=")
	b.WriteString(orAny(strings.ToLower(filter.TxHash)))
	b.WriteString(":from=")
	b.WriteString(blockOrAny(filter.FromBlock))
	b.WriteString(":to=")
	b.WriteString(blockOrAny(filter.ToBlock))
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(sqlquery.NormalizeLimit(filter.Limit)))
	return b.String()
}

func orAny(value string) string {
	if value == "" {
		return "any"
	}
	return value
}

func blockOrAny(block *uint64) string {
	if block == nil {
		return "any"
	}
	return strconv.FormatUint(*block, 10)
}
