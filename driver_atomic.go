package redgloom

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] bit array, KEYS[2] element count.
// ARGV[1] expire in milliseconds (0 = none), ARGV[2..] bit offsets.
var (
	testAndSetScript = redis.NewScript(`
local added = 0
for i = 2, #ARGV do
	if redis.call('SETBIT', KEYS[1], ARGV[i], 1) == 0 then
		added = 1
	end
end
if added == 1 then
	redis.call('INCR', KEYS[2])
end
local ttl = tonumber(ARGV[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return added
`)

	setAllScript = redis.NewScript(`
for i = 2, #ARGV do
	redis.call('SETBIT', KEYS[1], ARGV[i], 1)
end
local ttl = tonumber(ARGV[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

	testAllScript = redis.NewScript(`
for i = 1, #ARGV do
	if redis.call('GETBIT', KEYS[1], ARGV[i]) == 0 then
		return 0
	end
end
return 1
`)
)

// AtomicDriver runs every operation as a single server-side Lua script, so
// each call is one round trip and concurrent callers never observe a
// partially applied test-and-set.
//
// The bit array and the element count must hash to the same slot on Redis
// Cluster; use a hash tag in the key name (for example "{visitors}").
type AtomicDriver struct {
	client redis.UniversalClient
	ns     Namespace
}

// NewAtomicDriver returns a driver storing its bits under ns.
func NewAtomicDriver(client redis.UniversalClient, ns Namespace) *AtomicDriver {
	return &AtomicDriver{client: client, ns: ns}
}

// Name implements Driver.
func (d *AtomicDriver) Name() string { return DriverAtomic }

func (d *AtomicDriver) keys() []string {
	return []string{d.ns.BitsKey(), d.ns.CountKey()}
}

// TestAndSetAll implements Driver.
func (d *AtomicDriver) TestAndSetAll(ctx context.Context, positions []uint64, expire time.Duration) (bool, error) {
	added, err := testAndSetScript.Run(ctx, d.client, d.keys(), offsetArgs(positions, expire)...).Int()
	if err != nil {
		return false, err
	}
	return added == 0, nil
}

// SetAll implements Driver.
func (d *AtomicDriver) SetAll(ctx context.Context, positions []uint64, expire time.Duration) error {
	return setAllScript.Run(ctx, d.client, d.keys(), offsetArgs(positions, expire)...).Err()
}

// TestAll implements Driver. It stops at the first unset bit.
func (d *AtomicDriver) TestAll(ctx context.Context, positions []uint64) (bool, error) {
	args := make([]any, len(positions))
	for i, p := range positions {
		args[i] = p
	}
	found, err := testAllScript.Run(ctx, d.client, []string{d.ns.BitsKey()}, args...).Int()
	if err != nil {
		return false, err
	}
	return found == 1, nil
}

// Count implements Driver.
func (d *AtomicDriver) Count(ctx context.Context) (uint64, error) {
	return readCount(ctx, d.client, d.ns)
}

// Clear implements Driver.
func (d *AtomicDriver) Clear(ctx context.Context) error {
	return d.client.Del(ctx, d.keys()...).Err()
}

// readCount returns the element count, treating a missing key as zero.
func readCount(ctx context.Context, client redis.UniversalClient, ns Namespace) (uint64, error) {
	n, err := client.Get(ctx, ns.CountKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
