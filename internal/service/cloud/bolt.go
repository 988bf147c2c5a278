package cloud

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/metric"
)

var (
	metricsBucket     = []byte("metrics")
	submissionsBucket = []byte("assessment_answers")
)

// BoltStore is a single-file Store for deployments without redis. Keys
// are the big-endian timestamp followed by a per-bucket sequence.
type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string, logger *zap.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metricsBucket, submissionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &BoltStore{db: db, logger: logger.Named("cloud.bolt")}, nil
}

func recordKey(timestamp int64, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(timestamp))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func keyTimestamp(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[:8]))
}

// nested returns root/names..., creating buckets when create is set.
func nested(tx *bolt.Tx, create bool, root []byte, names ...string) (*bolt.Bucket, error) {
	b := tx.Bucket(root)
	for _, name := range names {
		if b == nil {
			return nil, nil
		}
		if create {
			var err error
			if b, err = b.CreateBucketIfNotExists([]byte(name)); err != nil {
				return nil, err
			}
			continue
		}
		b = b.Bucket([]byte(name))
	}
	return b, nil
}

func (s *BoltStore) SaveMetric(_ context.Context, m metric.Metric) error {
	if err := requireUser(m.UserID); err != nil {
		return err
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metric: %w", err)
	}
	return s.put(payload, m.Timestamp, metricsBucket, m.UserID)
}

func (s *BoltStore) MetricsBetween(_ context.Context, userID string, start, end int64) ([]metric.Metric, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out []metric.Metric
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := nested(tx, false, metricsBucket, userID)
		if err != nil || b == nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.Seek(recordKey(start, 0)); k != nil && keyTimestamp(k) <= end; k, v = c.Next() {
			var m metric.Metric
			if err := json.Unmarshal(v, &m); err != nil {
				s.logger.Warn("skip malformed metric", zap.Error(err))
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	return out, nil
}

func (s *BoltStore) LatestMetric(_ context.Context, userID string) (metric.Metric, error) {
	if err := requireUser(userID); err != nil {
		return metric.Metric{}, err
	}
	var (
		out   metric.Metric
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := nested(tx, false, metricsBucket, userID)
		if err != nil || b == nil {
			return err
		}
		if _, v := b.Cursor().Last(); v != nil {
			found = true
			return json.Unmarshal(v, &out)
		}
		return nil
	})
	if err != nil {
		return metric.Metric{}, fmt.Errorf("load latest metric: %w", err)
	}
	if !found {
		return metric.Metric{}, ErrNoMetrics
	}
	return out, nil
}

func (s *BoltStore) DeleteMetric(_ context.Context, userID string, timestamp int64) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	prefix := recordKey(timestamp, 0)[:8]
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := nested(tx, false, metricsBucket, userID)
		if err != nil || b == nil {
			return err
		}
		var doomed [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete metric: %w", err)
	}
	return nil
}

func (s *BoltStore) SaveSubmission(_ context.Context, userID string, sub metric.Submission) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if sub.Timestamp == 0 {
		sub.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	return s.put(payload, sub.Timestamp, submissionsBucket, userID, sub.Type)
}

func (s *BoltStore) Submissions(_ context.Context, userID, assessmentType string) ([]metric.Submission, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out []metric.Submission
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := nested(tx, false, submissionsBucket, userID, assessmentType)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			var sub metric.Submission
			if err := json.Unmarshal(v, &sub); err != nil {
				s.logger.Warn("skip malformed submission", zap.Error(err))
				return nil
			}
			out = append(out, sub)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	return out, nil
}

func (s *BoltStore) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(payload []byte, timestamp int64, root []byte, path ...string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := nested(tx, true, root, path...)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(recordKey(timestamp, seq), payload)
	})
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}
