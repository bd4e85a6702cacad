package state

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisKeyLayout(t *testing.T) {
	// the client connects lazily, so no server is needed to build keys
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedis(rdb, "airbot:", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "airbot:conversation:c1", store.redisKey(ScopeConversation, "c1"))
	require.Equal(t, "airbot:user:42", store.redisKey(ScopeUser, "42"))

	store, err = NewRedis(rdb, "", 0)
	require.NoError(t, err)
	require.Equal(t, "airbot:user:42", store.redisKey(ScopeUser, "42"))
}

func TestParseRedisFields(t *testing.T) {
	doc, version, err := parseRedisFields(ScopeUser, "u1", map[string]string{"data": `{"n":1}`, "version": "4"})
	require.NoError(t, err)
	require.Equal(t, int64(4), version)
	require.JSONEq(t, `1`, string(doc["n"]))

	_, _, err = parseRedisFields(ScopeUser, "u1", map[string]string{"data": `{}`})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "READ", se.Op)
}

func TestNewRedisRequiresClient(t *testing.T) {
	_, err := NewRedis(nil, "airbot", 0)
	require.Error(t, err)
}
