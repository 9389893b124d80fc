package locker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, cfg RedisConfig) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newRedis(client, cfg, nil), mr
}

func TestRedisLockIsRenewedWhileHeld(t *testing.T) {
	r, mr := newTestRedis(t, RedisConfig{TTL: time.Second, Renew: 20 * time.Millisecond})
	name := defaultPrefix + "51999"

	unlock, err := r.Lock(context.Background(), "51999")
	require.NoError(t, err)

	// each jump leaves less than the TTL, the holder must push it back
	for range 5 {
		mr.FastForward(900 * time.Millisecond)
		require.True(t, mr.Exists(name), "lock expired while held")
		require.Eventually(t, func() bool {
			return mr.TTL(name) > 500*time.Millisecond
		}, time.Second, 5*time.Millisecond)
	}

	unlock()
	assert.False(t, mr.Exists(name))

	// a released lock is not renewed anymore
	require.NoError(t, mr.Set(name, "other"))
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, mr.TTL(name))
}

func TestRedisLockExpiresWithoutHolder(t *testing.T) {
	r, mr := newTestRedis(t, RedisConfig{TTL: time.Second, Renew: 20 * time.Millisecond})
	name := defaultPrefix + "51999"

	require.NoError(t, mr.Set(name, "crashed-holder"))
	mr.SetTTL(name, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Lock(ctx, "51999")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	mr.FastForward(2 * time.Second)

	unlock, err := r.Lock(context.Background(), "51999")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockLostIsNotReclaimed(t *testing.T) {
	r, mr := newTestRedis(t, RedisConfig{TTL: time.Second, Renew: 20 * time.Millisecond})
	name := defaultPrefix + "51999"

	unlock, err := r.Lock(context.Background(), "51999")
	require.NoError(t, err)

	// another holder took over after an expiry
	require.NoError(t, mr.Set(name, "someone-else"))
	time.Sleep(60 * time.Millisecond)
	unlock()

	got, err := mr.Get(name)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
	assert.Zero(t, mr.TTL(name), "renewal must not touch a foreign lock")
}
