// Package redisstore implements store.Store on Redis. Each document is a hash
// holding its version and JSON data; each collection keeps a set of ids.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/store"
)

const maxUnconditionalAttempts = 5

// Store is a Redis-backed document store
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// New creates a Redis document store; keys are namespaced by prefix
func New(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	if prefix == "" {
		prefix = "compliance"
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:doc:%s", s.prefix, collection, id)
}

func (s *Store) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s:ids", s.prefix, collection)
}

func (s *Store) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return "", err
	}
	raw, err := store.EncodeObject(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}
	key := s.docKey(collection, id)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "version", 1, "data", string(raw))
			p.SAdd(ctx, s.indexKey(collection), id)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, store.ErrAlreadyExists), errors.Is(err, redis.TxFailedErr):
		return "", fmt.Errorf("%s/%s: %w", collection, id, store.ErrAlreadyExists)
	default:
		return "", fmt.Errorf("failed to create document %s/%s: %w", collection, id, err)
	}
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return decode(collection, id, fields)
}

func decode(collection, id string, fields map[string]string) (*store.Document, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt version on %s/%s: %w", collection, id, err)
	}
	return &store.Document{ID: id, Version: version, Data: json.RawMessage(fields["data"])}, nil
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]*store.Document, error) {
	if err := store.ValidateQuery(q); err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.docKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}

	docs := make([]*store.Document, 0, len(ids))
	for i, cmd := range cmds {
		doc, err := decode(collection, ids[i], cmd.Val())
		if errors.Is(err, store.ErrNotFound) {
			// deleted between SMEMBERS and HGETALL
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return store.Apply(docs, q)
}

func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]interface{}, ifVersion int64) (int64, error) {
	key := s.docKey(collection, id)

	for attempt := 0; attempt < maxUnconditionalAttempts; attempt++ {
		var next int64
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			doc, err := decode(collection, id, fields)
			if err != nil {
				return err
			}
			if ifVersion != 0 && doc.Version != ifVersion {
				return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, doc.Version, ifVersion, store.ErrVersionConflict)
			}
			merged, err := store.MergeJSON(doc.Data, patch)
			if err != nil {
				return err
			}
			next = doc.Version + 1
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.HSet(ctx, key, "version", next, "data", string(merged))
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			if ifVersion != 0 {
				return 0, fmt.Errorf("%s/%s: %w", collection, id, store.ErrVersionConflict)
			}
			s.logger.Debug("Retrying unconditional update after concurrent write",
				zap.String("collection", collection), zap.String("id", id))
			continue
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVersionConflict):
			return 0, err
		default:
			return 0, fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
		}
	}
	return 0, fmt.Errorf("%s/%s: %w", collection, id, store.ErrVersionConflict)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.docKey(collection, id))
		p.SRem(ctx, s.indexKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}
