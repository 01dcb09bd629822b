package redgloom

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NaiveDriver talks to servers without Lua scripting. Reads and writes are
// pipelined, so TestAll and SetAll are one round trip each, but
// TestAndSetAll is a read followed by a separate write with no lock in
// between.
//
// NaiveDriver is NOT safe for check-and-set under concurrency: two callers
// inserting values with overlapping positions at the same time can both
// observe "new" and both increment the element count. A failed SetAll may
// leave some bits set. Prefer AtomicDriver whenever the server supports it.
type NaiveDriver struct {
	client redis.UniversalClient
	ns     Namespace
}

// NewNaiveDriver returns a driver storing its bits under ns.
func NewNaiveDriver(client redis.UniversalClient, ns Namespace) *NaiveDriver {
	return &NaiveDriver{client: client, ns: ns}
}

// Name implements Driver.
func (d *NaiveDriver) Name() string { return DriverNaive }

// TestAndSetAll implements Driver.
func (d *NaiveDriver) TestAndSetAll(ctx context.Context, positions []uint64, expire time.Duration) (bool, error) {
	present, err := d.TestAll(ctx, positions)
	if err != nil {
		return false, err
	}
	if present {
		// Nothing new to write; the TTL still slides like the atomic variant.
		if ms := expireMillis(expire); ms > 0 {
			_, err = d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				d.expire(ctx, pipe, ms)
				return nil
			})
		}
		return true, err
	}

	_, err = d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		d.setBits(ctx, pipe, positions)
		pipe.Incr(ctx, d.ns.CountKey())
		d.expire(ctx, pipe, expireMillis(expire))
		return nil
	})
	return false, err
}

// SetAll implements Driver.
func (d *NaiveDriver) SetAll(ctx context.Context, positions []uint64, expire time.Duration) error {
	_, err := d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		d.setBits(ctx, pipe, positions)
		d.expire(ctx, pipe, expireMillis(expire))
		return nil
	})
	return err
}

// TestAll implements Driver.
func (d *NaiveDriver) TestAll(ctx context.Context, positions []uint64) (bool, error) {
	cmds := make([]*redis.IntCmd, len(positions))
	_, err := d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range positions {
			cmds[i] = pipe.GetBit(ctx, d.ns.BitsKey(), int64(p))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Count implements Driver.
func (d *NaiveDriver) Count(ctx context.Context) (uint64, error) {
	return readCount(ctx, d.client, d.ns)
}

// Clear implements Driver.
func (d *NaiveDriver) Clear(ctx context.Context) error {
	return d.client.Del(ctx, d.ns.BitsKey(), d.ns.CountKey()).Err()
}

func (d *NaiveDriver) setBits(ctx context.Context, pipe redis.Pipeliner, positions []uint64) {
	for _, p := range positions {
		pipe.SetBit(ctx, d.ns.BitsKey(), int64(p), 1)
	}
}

func (d *NaiveDriver) expire(ctx context.Context, pipe redis.Pipeliner, ms int64) {
	if ms <= 0 {
		return
	}
	ttl := time.Duration(ms) * time.Millisecond
	pipe.PExpire(ctx, d.ns.BitsKey(), ttl)
	pipe.PExpire(ctx, d.ns.CountKey(), ttl)
}
