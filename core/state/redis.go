package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per scope key under <prefix>:<scope>:<key> with
// the JSON document in field "data" and its version in field "version".
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. A zero ttl stores keys without expiry.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("state: redis client must not be nil")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "airbot"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

// ConnectRedis creates a client and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("state: redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *RedisStore) redisKey(scope Scope, key string) string {
	return r.prefix + ":" + string(scope) + ":" + key
}

// Read loads the document for key with its version.
func (r *RedisStore) Read(ctx context.Context, scope Scope, key string) (Document, int64, error) {
	if err := checkScope(scope, key); err != nil {
		return nil, 0, err
	}
	fields, err := r.rdb.HGetAll(ctx, r.redisKey(scope, key)).Result()
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	if len(fields) == 0 {
		return Document{}, 0, nil
	}
	return parseRedisFields(scope, key, fields)
}

func parseRedisFields(scope Scope, key string, fields map[string]string) (Document, int64, error) {
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: fmt.Errorf("bad version: %w", err)}
	}
	doc, err := decodeDocument([]byte(fields["data"]))
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	return doc, version, nil
}

// Write stores doc inside WATCH/MULTI when the hash is still at version, refreshing the TTL.
func (r *RedisStore) Write(ctx context.Context, scope Scope, key string, doc Document, version int64) (int64, error) {
	if err := checkScope(scope, key); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	rk := r.redisKey(scope, key)
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, rk, "version").Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		if cur != version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, "data", string(data), "version", version+1)
			if r.ttl > 0 {
				pipe.Expire(ctx, rk, r.ttl)
			}
			return nil
		})
		return err
	}, rk)
	if errors.Is(err, ErrConflict) || errors.Is(err, redis.TxFailedErr) {
		return 0, conflict(scope, key, version)
	}
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	return version + 1, nil
}

// Delete removes the document for key.
func (r *RedisStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := checkScope(scope, key); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.redisKey(scope, key)).Err(); err != nil {
		return &StorageError{Op: "DELETE", Scope: scope, Key: key, Err: err}
	}
	return nil
}

// Keys walks the keyspace with SCAN and strips the prefix.
func (r *RedisStore) Keys(ctx context.Context, scope Scope) ([]string, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	match := r.redisKey(scope, "*")
	head := r.redisKey(scope, "")

	var keys []string
	iter := r.rdb.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), head))
	}
	if err := iter.Err(); err != nil {
		return nil, &StorageError{Op: "LIST", Scope: scope, Err: err}
	}
	return keys, nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
