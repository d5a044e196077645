package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var (
	ErrDraftNotFound = errors.New("booking draft not found")
	ErrDraftConflict = errors.New("booking draft was modified concurrently, please retry")
)

const maxUpdateRetries = 3

type Store interface {
	Save(ctx context.Context, d *Draft) error
	Load(ctx context.Context, id string) (*Draft, error)
	// Update applies fn to the stored draft and writes it back atomically.
	Update(ctx context.Context, id string, fn func(*Draft) error) (*Draft, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps drafts as JSON strings that expire after ttl of inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func draftKey(id string) string {
	return fmt.Sprintf("draft:booking:%s", id)
}

func (s *RedisStore) Save(ctx context.Context, d *Draft) error {
	d.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, draftKey(d.ID), data, s.ttl).Err()
}

func decodeDraft(raw []byte, err error) (*Draft, error) {
	if errors.Is(err, redis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Draft, error) {
	return decodeDraft(s.client.Get(ctx, draftKey(id)).Bytes())
}

// Update uses WATCH/MULTI so that a concurrent writer aborts the transaction
// instead of being overwritten.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Draft) error) (*Draft, error) {
	key := draftKey(id)
	var updated *Draft

	txf := func(tx *redis.Tx) error {
		d, err := decodeDraft(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
		d.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = d
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrDraftConflict
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, draftKey(id)).Err()
}
