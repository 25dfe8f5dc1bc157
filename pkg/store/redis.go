package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"echoclicker/internal/models"
)

// ScriptsKey is the hash holding every script, keyed by name.
const ScriptsKey = "echoclicker:scripts"

const maxSaveRetries = 5

type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Save keeps the creation time of an existing entry. The read and the write
// run under WATCH so a concurrent save of the same name retries.
func (s *RedisStore) Save(ctx context.Context, name, text string) (models.Script, error) {
	if err := validateName(name); err != nil {
		return models.Script{}, err
	}

	var script models.Script
	txf := func(tx *redis.Tx) error {
		now := s.now().UTC()
		script = models.Script{Name: name, Text: text}
		script.CreatedAt = now
		script.UpdatedAt = now

		prev, err := tx.HGet(ctx, ScriptsKey, name).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if old, err := decodeScript(prev); err == nil {
				script.CreatedAt = old.CreatedAt
			}
		}

		doc, err := json.Marshal(script)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, ScriptsKey, name, string(doc))
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveRetries; i++ {
		err := s.client.Watch(ctx, txf, ScriptsKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return models.Script{}, fmt.Errorf("failed to save script: %w", err)
		}
		return script, nil
	}
	return models.Script{}, fmt.Errorf("failed to save script %q: too much contention", name)
}

func (s *RedisStore) Load(ctx context.Context, name string) (models.Script, error) {
	raw, err := s.client.HGet(ctx, ScriptsKey, name).Result()
	if errors.Is(err, redis.Nil) {
		return models.Script{}, notFound(name)
	}
	if err != nil {
		return models.Script{}, err
	}
	return decodeScript(raw)
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	n, err := s.client.HDel(ctx, ScriptsKey, name).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(name)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]models.Script, error) {
	all, err := s.client.HGetAll(ctx, ScriptsKey).Result()
	if err != nil {
		return nil, err
	}
	list := make([]models.Script, 0, len(all))
	for _, raw := range all {
		script, err := decodeScript(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, script)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeScript(raw string) (models.Script, error) {
	var script models.Script
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return models.Script{}, fmt.Errorf("corrupt script entry: %w", err)
	}
	return script, nil
}
