package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// defaultKeyPrefix namespaces all engine keys in a shared Redis.
const defaultKeyPrefix = "narratekit"

// RedisStore provides a Redis-backed implementation of the Store
// interface. Jobs are stored as JSON under `prefix:job:<id>` with a set
// at `prefix:jobs` indexing the known IDs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets an expiration on stored jobs, refreshed on every save.
// Jobs are durable project state, so the default of zero never expires
// them; set a TTL only for deployments that want automatic cleanup.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithKeyPrefix sets the key prefix for Redis keys.
// Default is "narratekit".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed job store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithKeyPrefix("myapp"),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// LoadJob retrieves a job by ID from Redis.
func (s *RedisStore) LoadJob(ctx context.Context, id string) (*types.Job, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// SaveJob persists a job to Redis. Uses a pipeline to batch the SET and
// the index update into a single round-trip.
func (s *RedisStore) SaveJob(ctx context.Context, job *types.Job) error {
	if job == nil {
		return ErrInvalidJob
	}
	if job.ID == "" {
		return ErrInvalidID
	}

	// Stamp a shallow copy so the caller's record is left alone. The
	// units slice is shared but only read during marshaling.
	stamped := *job
	stamped.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&stamped)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.jobKey(job.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), job.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// DeleteJob removes a job from Redis. Uses a pipeline to batch the DEL
// and the index cleanup.
func (s *RedisStore) DeleteJob(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.jobKey(id))
	pipe.SRem(ctx, s.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	if delCmd.Val() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListJobs returns all job IDs, most recently updated first. Index
// members whose job key has expired are skipped.
func (s *RedisStore) ListJobs(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	jobs, err := s.pipelinedLoadJobs(ctx, members)
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids, nil
}

// pipelinedLoadJobs fetches multiple jobs using a single pipelined GET,
// dropping IDs whose keys no longer exist.
func (s *RedisStore) pipelinedLoadJobs(ctx context.Context, ids []string) ([]*types.Job, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	jobs := make([]*types.Job, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// jobKey generates the Redis key for a job.
func (s *RedisStore) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", s.prefix, id)
}

// indexKey generates the Redis key for the set of known job IDs.
func (s *RedisStore) indexKey() string {
	return fmt.Sprintf("%s:jobs", s.prefix)
}
