package redgloom

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Built-in driver names.
const (
	DriverAtomic = "atomic"
	DriverNaive  = "naive"
	DriverMemory = "memory"
)

// Driver performs bit operations for one filter generation against its
// backing store. Positions are bit offsets in [0, m).
//
// An expire of zero leaves key expiration untouched; a positive expire is
// re-applied to the bit array and the element count on every setting call.
type Driver interface {
	// TestAndSetAll sets every position and reports whether all of them were
	// already set. The element count is incremented only when at least one
	// bit went from 0 to 1.
	TestAndSetAll(ctx context.Context, positions []uint64, expire time.Duration) (bool, error)

	// SetAll sets every position. The element count is not touched.
	SetAll(ctx context.Context, positions []uint64, expire time.Duration) error

	// TestAll reports whether every position is set.
	TestAll(ctx context.Context, positions []uint64) (bool, error)

	// Count returns the element count of the generation.
	Count(ctx context.Context) (uint64, error)

	// Clear removes the bit array and the element count.
	Clear(ctx context.Context) error

	// Name returns the name the driver is registered under.
	Name() string
}

// Namespace identifies where one generation lives in the store.
type Namespace string

// BitsKey is the key holding the bit array.
func (ns Namespace) BitsKey() string { return string(ns) }

// CountKey is the key holding the element count.
func (ns Namespace) CountKey() string { return string(ns) + ":count" }

// Generation returns the namespace of generation i. Generation 0 uses the
// base key name unchanged.
func (ns Namespace) Generation(i int) Namespace {
	if i == 0 {
		return ns
	}
	return Namespace(string(ns) + ":" + strconv.Itoa(i))
}

// DriverFactory builds a driver bound to one namespace. Factories for
// in-process drivers may ignore client.
type DriverFactory func(ns Namespace, client redis.UniversalClient) (Driver, error)

type driverEntry struct {
	factory     DriverFactory
	needsClient bool
}

var (
	driversMu sync.RWMutex
	drivers   = map[string]driverEntry{}
)

func init() {
	RegisterDriver(DriverAtomic, true, func(ns Namespace, c redis.UniversalClient) (Driver, error) {
		return NewAtomicDriver(c, ns), nil
	})
	RegisterDriver(DriverNaive, true, func(ns Namespace, c redis.UniversalClient) (Driver, error) {
		return NewNaiveDriver(c, ns), nil
	})
	RegisterDriver(DriverMemory, false, func(ns Namespace, _ redis.UniversalClient) (Driver, error) {
		return NewMemoryDriver(), nil
	})
}

// RegisterDriver makes a driver available to Config.Driver under name.
// needsClient marks drivers that cannot be built without a Redis client.
func RegisterDriver(name string, needsClient bool, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = driverEntry{factory: factory, needsClient: needsClient}
}

// Drivers returns the names of all registered drivers in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (driverEntry, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return driverEntry{}, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return d, nil
}

// offsetArgs converts positions to script arguments.
func offsetArgs(positions []uint64, expire time.Duration) []any {
	args := make([]any, 0, len(positions)+1)
	args = append(args, expireMillis(expire))
	for _, p := range positions {
		args = append(args, p)
	}
	return args
}

// expireMillis rounds a positive expire up to at least one millisecond so a
// requested TTL is never silently dropped.
func expireMillis(expire time.Duration) int64 {
	if expire <= 0 {
		return 0
	}
	return max(expire.Milliseconds(), 1)
}
