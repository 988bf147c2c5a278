package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/metric"
)

const keyPrefix = "companion:"

// RedisStore keeps one sorted set per user and record type, scored by
// timestamp.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// OpenRedis parses a redis:// URL, connects and pings.
func OpenRedis(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisStore, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse Redis URL: %w", err)
	}
	store := NewRedisStore(redis.NewClient(opt), logger)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	store.logger.Info("connected to redis", zap.String("addr", opt.Addr))
	return store, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, logger: logger.Named("cloud.redis")}
}

func metricsKey(userID string) string {
	return keyPrefix + "metrics:" + userID
}

func submissionsKey(userID, assessmentType string) string {
	return keyPrefix + "assessments:" + userID + ":" + assessmentType
}

func (s *RedisStore) SaveMetric(ctx context.Context, m metric.Metric) error {
	if err := requireUser(m.UserID); err != nil {
		return err
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(record{ID: uuid.NewString(), Metric: m})
	if err != nil {
		return fmt.Errorf("encode metric: %w", err)
	}
	err = s.rdb.ZAdd(ctx, metricsKey(m.UserID), redis.Z{Score: float64(m.Timestamp), Member: payload}).Err()
	if err != nil {
		return fmt.Errorf("save metric: %w", err)
	}
	return nil
}

func (s *RedisStore) MetricsBetween(ctx context.Context, userID string, start, end int64) ([]metric.Metric, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	raw, err := s.rdb.ZRangeByScore(ctx, metricsKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(start, 10),
		Max: strconv.FormatInt(end, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	return s.decodeMetrics(raw), nil
}

func (s *RedisStore) LatestMetric(ctx context.Context, userID string) (metric.Metric, error) {
	if err := requireUser(userID); err != nil {
		return metric.Metric{}, err
	}
	raw, err := s.rdb.ZRevRange(ctx, metricsKey(userID), 0, 0).Result()
	if err != nil {
		return metric.Metric{}, fmt.Errorf("load latest metric: %w", err)
	}
	metrics := s.decodeMetrics(raw)
	if len(metrics) == 0 {
		return metric.Metric{}, ErrNoMetrics
	}
	return metrics[0], nil
}

func (s *RedisStore) DeleteMetric(ctx context.Context, userID string, timestamp int64) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	ts := strconv.FormatInt(timestamp, 10)
	if err := s.rdb.ZRemRangeByScore(ctx, metricsKey(userID), ts, ts).Err(); err != nil {
		return fmt.Errorf("delete metric: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveSubmission(ctx context.Context, userID string, sub metric.Submission) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if sub.Timestamp == 0 {
		sub.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(struct {
		ID string `json:"id"`
		metric.Submission
	}{ID: uuid.NewString(), Submission: sub})
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	err = s.rdb.ZAdd(ctx, submissionsKey(userID, sub.Type), redis.Z{Score: float64(sub.Timestamp), Member: payload}).Err()
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

func (s *RedisStore) Submissions(ctx context.Context, userID, assessmentType string) ([]metric.Submission, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	raw, err := s.rdb.ZRange(ctx, submissionsKey(userID, assessmentType), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	out := make([]metric.Submission, 0, len(raw))
	for _, item := range raw {
		var sub metric.Submission
		if err := json.Unmarshal([]byte(item), &sub); err != nil {
			s.logger.Warn("skip malformed submission", zap.Error(err))
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) decodeMetrics(raw []string) []metric.Metric {
	out := make([]metric.Metric, 0, len(raw))
	for _, item := range raw {
		var rec record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.logger.Warn("skip malformed metric", zap.Error(err))
			continue
		}
		out = append(out, rec.Metric)
	}
	return out
}
