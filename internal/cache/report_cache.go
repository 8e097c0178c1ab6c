package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/config"
	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	reportKeyPrefix  = "archive:report:"
	defaultReportTTL = 7 * 24 * time.Hour
)

// ReportCache stores archive job reports in redis with a TTL.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportCache(ctx context.Context, cfg config.CacheConfig, ttl time.Duration) (*ReportCache, error) {
	client, err := newRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &ReportCache{client: client, ttl: ttl}, nil
}

func (c *ReportCache) Save(ctx context.Context, report *domain.JobReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode job report: %w", err)
	}
	if err := c.client.Set(ctx, reportKey(report.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *ReportCache) Get(ctx context.Context, id string) (*domain.JobReport, error) {
	payload, err := c.client.Get(ctx, reportKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.NewNotFound("get_report", id, fmt.Errorf("job %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var report domain.JobReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode job report cache: %w", err)
	}
	return &report, nil
}

func (c *ReportCache) Close() error {
	return c.client.Close()
}

func reportKey(id string) string {
	return reportKeyPrefix + id
}
