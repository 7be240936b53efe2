package lease

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/eureka/core"
)

// LeaseStatus is the lease health published after every completed tick
type LeaseStatus struct {
	App                 string    `json:"app"`
	InstanceID          string    `json:"instanceId"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int64     `json:"consecutiveFailures"`
	LastSuccess         time.Time `json:"lastSuccess"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// StatusSink receives lease status updates. Errors are logged by the
// scheduler and never affect ticking.
type StatusSink interface {
	Publish(ctx context.Context, status LeaseStatus, ttl time.Duration) error
	Remove(ctx context.Context, app, instanceID string) error
	Close() error
}

// RedisStatusSink mirrors lease status into Redis so that sidecars and
// health probes can read it. Entries expire after the lease duration, so a
// stale key means the instance stopped renewing.
type RedisStatusSink struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisStatusSink connects to redisURL and verifies the connection
func NewRedisStatusSink(redisURL, namespace string, logger core.Logger) (*RedisStatusSink, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.ConfigError("lease.NewRedisStatusSink", fmt.Sprintf("invalid Redis URL: %v", err), core.ErrInvalidConfiguration)
	}
	opt.PoolSize = 2
	opt.MaxRetries = 1
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = 2 * time.Second
	opt.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &core.ClientError{
			Op:   "lease.NewRedisStatusSink",
			Kind: core.KindTransport,
			ID:   opt.Addr,
			Err:  fmt.Errorf("%w: redis ping: %w", core.ErrTransport, err),
		}
	}

	sink := NewRedisStatusSinkFromClient(client, namespace)
	sink.logger = core.ComponentLogger(logger, "lease/status")
	sink.logger.Info("Lease status mirror connected", map[string]interface{}{
		"redis_addr": opt.Addr,
		"redis_db":   opt.DB,
		"namespace":  sink.namespace,
	})
	return sink, nil
}

// NewRedisStatusSinkFromClient wraps an existing client
func NewRedisStatusSinkFromClient(client *redis.Client, namespace string) *RedisStatusSink {
	if namespace == "" {
		namespace = core.DefaultLeaseNamespace
	}
	return &RedisStatusSink{
		client:    client,
		namespace: namespace,
		logger:    &core.NoOpLogger{},
	}
}

// Key returns the Redis key holding the status of app/instanceID
func (s *RedisStatusSink) Key(app, instanceID string) string {
	return fmt.Sprintf("%s:lease:%s:%s", s.namespace, app, instanceID)
}

// Publish stores status as JSON with the given TTL
func (s *RedisStatusSink) Publish(ctx context.Context, status LeaseStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode lease status: %w", err)
	}
	if err := s.client.Set(ctx, s.Key(status.App, status.InstanceID), data, ttl).Err(); err != nil {
		return fmt.Errorf("publish lease status: %w", err)
	}
	return nil
}

// Remove deletes the status entry of app/instanceID
func (s *RedisStatusSink) Remove(ctx context.Context, app, instanceID string) error {
	if err := s.client.Del(ctx, s.Key(app, instanceID)).Err(); err != nil {
		return fmt.Errorf("remove lease status: %w", err)
	}
	return nil
}

// Read returns the stored status of app/instanceID
func (s *RedisStatusSink) Read(ctx context.Context, app, instanceID string) (*LeaseStatus, error) {
	data, err := s.client.Get(ctx, s.Key(app, instanceID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("read lease status: %w", err)
	}
	var status LeaseStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode lease status: %w", err)
	}
	return &status, nil
}

// Close closes the Redis client
func (s *RedisStatusSink) Close() error {
	return s.client.Close()
}
